package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wellbridge/careguard/internal/types"
)

// InsertViolation appends one audit row. Tenant and user always come from tc,
// never from v.
func (g *Gateway) InsertViolation(ctx context.Context, tc types.TenantContext, v types.Violation) (types.Violation, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	v.TenantID, v.UserID = tc.TenantID, tc.UserID

	var session *string
	if _, err := uuid.Parse(v.SessionID); err == nil {
		session = &v.SessionID
	}

	err := g.Scoped(ctx, tc, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO guardrail_violations (id, tenant_id, user_id, session_id, raw_response, pattern_matched, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, v.ID, tc.TenantID, tc.UserID, session, v.RawResponse, v.RuleID, v.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Violation{}, err
	}
	return v, nil
}

// ListViolations returns audit rows in [from, to), newest first. Auditors see
// every row of their tenant; everyone else sees only their own.
func (g *Gateway) ListViolations(ctx context.Context, tc types.TenantContext, from, to time.Time, limit int) ([]types.Violation, error) {
	if !tc.Valid() || limit <= 0 {
		return nil, nil
	}

	var out []types.Violation
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, tenant_id, user_id, session_id, raw_response, pattern_matched, created_at
			FROM guardrail_violations
			WHERE tenant_id = $1
			  AND (user_id = $2 OR $3)
			  AND created_at >= $4 AND created_at < $5
			ORDER BY created_at DESC
			LIMIT $6
		`, tc.TenantID, tc.UserID, tc.IsAuditor(), from, to, limit)
		if err != nil {
			return fmt.Errorf("list violations: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Violation, error) {
			var v types.Violation
			var session *string
			err := row.Scan(&v.ID, &v.TenantID, &v.UserID, &session, &v.RawResponse, &v.RuleID, &v.CreatedAt)
			if session != nil {
				v.SessionID = *session
			}
			return v, err
		})
		return err
	})
	return out, err
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wellbridge/careguard/internal/types"
)

// CreateSession opens a new conversation for the caller.
func (g *Gateway) CreateSession(ctx context.Context, tc types.TenantContext, title string) (types.Session, error) {
	now := time.Now().UTC()
	s := types.Session{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}

	err := g.Scoped(ctx, tc, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, tenant_id, user_id, title, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, s.ID, tc.TenantID, tc.UserID, s.Title, now)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Session{}, err
	}
	return s, nil
}

// SessionExists reports whether sessionID belongs to the caller. Sessions of
// other tenants or users are indistinguishable from missing ones.
func (g *Gateway) SessionExists(ctx context.Context, tc types.TenantContext, sessionID string) (bool, error) {
	if !tc.Valid() || sessionID == "" {
		return false, nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return false, nil
	}

	var exists bool
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND tenant_id = $2 AND user_id = $3)
		`, sessionID, tc.TenantID, tc.UserID).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("session lookup: %w", err)
	}
	return exists, nil
}

// ListSessions returns the caller's sessions, most recently active first.
func (g *Gateway) ListSessions(ctx context.Context, tc types.TenantContext, limit int) ([]types.Session, error) {
	if !tc.Valid() || limit <= 0 {
		return nil, nil
	}

	var out []types.Session
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, title, created_at, updated_at
			FROM sessions
			WHERE tenant_id = $1 AND user_id = $2
			ORDER BY updated_at DESC
			LIMIT $3
		`, tc.TenantID, tc.UserID, limit)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Session, error) {
			var s types.Session
			err := row.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
			return s, err
		})
		return err
	})
	return out, err
}

// History returns up to limit messages of a session in chronological order.
func (g *Gateway) History(ctx context.Context, tc types.TenantContext, sessionID string, limit int) ([]types.Message, error) {
	if !tc.Valid() || sessionID == "" || limit <= 0 {
		return nil, nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil
	}

	var out []types.Message
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, session_id, role, content, intent, guardrail_triggered, action_cards, suggested_replies, created_at
			FROM (
				SELECT * FROM messages
				WHERE session_id = $1 AND tenant_id = $2 AND user_id = $3
				ORDER BY created_at DESC, seq DESC
				LIMIT $4
			) recent
			ORDER BY created_at, seq
		`, sessionID, tc.TenantID, tc.UserID, limit)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		out, err = pgx.CollectRows(rows, scanMessage)
		return err
	})
	return out, err
}

func scanMessage(row pgx.CollectableRow) (types.Message, error) {
	var m types.Message
	var intent *string
	var cards, replies []byte
	if err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &intent, &m.GuardrailTriggered, &cards, &replies, &m.CreatedAt); err != nil {
		return m, err
	}
	if intent != nil {
		m.Intent = types.Intent(*intent)
	}
	if len(cards) > 0 {
		if err := json.Unmarshal(cards, &m.ActionCards); err != nil {
			return m, fmt.Errorf("decode action cards: %w", err)
		}
	}
	if len(replies) > 0 {
		if err := json.Unmarshal(replies, &m.SuggestedReplies); err != nil {
			return m, fmt.Errorf("decode suggested replies: %w", err)
		}
	}
	return m, nil
}

// SaveMessage appends a message to a session the caller owns and bumps the
// session's activity time.
func (g *Gateway) SaveMessage(ctx context.Context, tc types.TenantContext, m types.Message) (types.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var intent *string
	if m.Intent != "" {
		s := string(m.Intent)
		intent = &s
	}
	cards, err := json.Marshal(nonNil(m.ActionCards))
	if err != nil {
		return types.Message{}, fmt.Errorf("encode action cards: %w", err)
	}
	replies, err := json.Marshal(nonNil(m.SuggestedReplies))
	if err != nil {
		return types.Message{}, fmt.Errorf("encode suggested replies: %w", err)
	}

	err = g.Scoped(ctx, tc, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO messages (id, tenant_id, user_id, session_id, role, content, intent, guardrail_triggered, action_cards, suggested_replies, created_at)
			SELECT $1, $2, $3, s.id, $5, $6, $7, $8, $9, $10, $11
			FROM sessions s
			WHERE s.id = $4 AND s.tenant_id = $2 AND s.user_id = $3
		`, m.ID, tc.TenantID, tc.UserID, m.SessionID, m.Role, m.Content, intent, m.GuardrailTriggered, cards, replies, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSessionNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1`, m.SessionID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Message{}, err
	}
	return m, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

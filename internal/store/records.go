package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/wellbridge/careguard/internal/types"
)

const recordColumns = `id, title, content, record_type, provider_name, record_date`

func scanRecord(row pgx.CollectableRow) (types.Record, error) {
	var r types.Record
	var provider *string
	err := row.Scan(&r.ID, &r.Title, &r.Content, &r.RecordType, &provider, &r.RecordDate)
	if provider != nil {
		r.ProviderName = *provider
	}
	return r, err
}

func scanScoredRecord(row pgx.CollectableRow) (types.Record, error) {
	var r types.Record
	var provider *string
	err := row.Scan(&r.ID, &r.Title, &r.Content, &r.RecordType, &provider, &r.RecordDate, &r.Similarity)
	if provider != nil {
		r.ProviderName = *provider
	}
	return r, err
}

// SemanticSearch returns the caller's records whose cosine similarity to
// embedding is at least floor, closest first.
func (g *Gateway) SemanticSearch(ctx context.Context, tc types.TenantContext, embedding []float32, floor float64, limit int) ([]types.Record, error) {
	if !tc.Valid() || len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(embedding)

	var out []types.Record
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+recordColumns+`, 1 - (embedding <=> $1) AS similarity
			FROM records
			WHERE tenant_id = $2 AND user_id = $3
			  AND embedding IS NOT NULL
			  AND 1 - (embedding <=> $1) >= $4
			ORDER BY embedding <=> $1
			LIMIT $5
		`, vec, tc.TenantID, tc.UserID, floor, limit)
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		out, err = pgx.CollectRows(rows, scanScoredRecord)
		return err
	})
	return out, err
}

// FullTextSearch ranks the caller's records against a web-search style query.
func (g *Gateway) FullTextSearch(ctx context.Context, tc types.TenantContext, query string, limit int) ([]types.Record, error) {
	if !tc.Valid() || query == "" || limit <= 0 {
		return nil, nil
	}

	var out []types.Record
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+recordColumns+`
			FROM records
			WHERE tenant_id = $1 AND user_id = $2
			  AND search_vector @@ websearch_to_tsquery('english', $3)
			ORDER BY ts_rank(search_vector, websearch_to_tsquery('english', $3)) DESC, record_date DESC
			LIMIT $4
		`, tc.TenantID, tc.UserID, query, limit)
		if err != nil {
			return fmt.Errorf("full-text search: %w", err)
		}
		out, err = pgx.CollectRows(rows, scanRecord)
		return err
	})
	return out, err
}

// RecentRecords returns the caller's newest records.
func (g *Gateway) RecentRecords(ctx context.Context, tc types.TenantContext, limit int) ([]types.Record, error) {
	if !tc.Valid() || limit <= 0 {
		return nil, nil
	}

	var out []types.Record
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+recordColumns+`
			FROM records
			WHERE tenant_id = $1 AND user_id = $2
			ORDER BY record_date DESC, created_at DESC
			LIMIT $3
		`, tc.TenantID, tc.UserID, limit)
		if err != nil {
			return fmt.Errorf("recent records: %w", err)
		}
		out, err = pgx.CollectRows(rows, scanRecord)
		return err
	})
	return out, err
}

// InsertRecord stores a record for the caller. A nil embedding leaves the
// record reachable by full-text search only.
func (g *Gateway) InsertRecord(ctx context.Context, tc types.TenantContext, rec types.Record, embedding []float32) (types.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordDate.IsZero() {
		rec.RecordDate = time.Now().UTC()
	}
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}
	var provider *string
	if rec.ProviderName != "" {
		provider = &rec.ProviderName
	}

	err := g.Scoped(ctx, tc, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO records (id, tenant_id, user_id, title, content, record_type, provider_name, record_date, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, rec.ID, tc.TenantID, tc.UserID, rec.Title, rec.Content, rec.RecordType, provider, rec.RecordDate, vec)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

// UpcomingAppointments returns the caller's future appointments, soonest first.
func (g *Gateway) UpcomingAppointments(ctx context.Context, tc types.TenantContext, limit int) ([]types.Appointment, error) {
	if !tc.Valid() || limit <= 0 {
		return nil, nil
	}

	var out []types.Appointment
	err := g.scopedRead(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, title, provider_name, location, starts_at
			FROM appointments
			WHERE tenant_id = $1 AND user_id = $2 AND starts_at >= NOW()
			ORDER BY starts_at
			LIMIT $3
		`, tc.TenantID, tc.UserID, limit)
		if err != nil {
			return fmt.Errorf("upcoming appointments: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Appointment, error) {
			var a types.Appointment
			var provider, location *string
			err := row.Scan(&a.ID, &a.Title, &provider, &location, &a.StartsAt)
			if provider != nil {
				a.ProviderName = *provider
			}
			if location != nil {
				a.Location = *location
			}
			return a, err
		})
		return err
	})
	return out, err
}

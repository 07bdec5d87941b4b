// Package gateway holds the HTTP handlers. Every handler reads the tenant
// from the request context set by the auth middleware and passes it on
// explicitly; nothing here touches the database without it.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wellbridge/careguard/internal/engine"
	"github.com/wellbridge/careguard/internal/llm"
	"github.com/wellbridge/careguard/internal/types"
)

const maxBodyBytes = 1 << 20

type TurnRunner interface {
	Turn(ctx context.Context, req engine.TurnRequest) (*engine.TurnResult, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, tc types.TenantContext, title string) (types.Session, error)
	ListSessions(ctx context.Context, tc types.TenantContext, limit int) ([]types.Session, error)
	SessionExists(ctx context.Context, tc types.TenantContext, sessionID string) (bool, error)
	History(ctx context.Context, tc types.TenantContext, sessionID string, limit int) ([]types.Message, error)
	SaveMessage(ctx context.Context, tc types.TenantContext, m types.Message) (types.Message, error)
}

type RecordStore interface {
	InsertRecord(ctx context.Context, tc types.TenantContext, rec types.Record, embedding []float32) (types.Record, error)
}

type ViolationExporter interface {
	Export(ctx context.Context, tc types.TenantContext, from, to time.Time, limit int) ([]types.Violation, error)
}

// Handler holds dependencies for the HTTP handlers. embedder may be nil.
type Handler struct {
	sessions SessionStore
	records  RecordStore
	embedder llm.Embedder
	turns    TurnRunner
	exporter ViolationExporter
	now      func() time.Time
}

func NewHandler(sessions SessionStore, records RecordStore, embedder llm.Embedder, turns TurnRunner, exporter ViolationExporter) *Handler {
	return &Handler{
		sessions: sessions,
		records:  records,
		embedder: embedder,
		turns:    turns,
		exporter: exporter,
		now:      time.Now,
	}
}

// Mount registers the authenticated routes. turnMW wraps only the turn
// endpoint, which is the one that reaches the generation model.
func (h *Handler) Mount(r chi.Router, turnMW ...func(http.Handler) http.Handler) {
	r.Post("/v1/sessions", h.CreateSession)
	r.Get("/v1/sessions", h.ListSessions)
	r.Get("/v1/sessions/{id}/messages", h.ListMessages)
	r.With(turnMW...).Post("/v1/sessions/{id}/turns", h.CreateTurn)
	r.Post("/v1/records", h.CreateRecord)
	r.Get("/v1/audit/violations", h.ListViolations)
}

// decodeBody reads at most maxBodyBytes of JSON into v. An empty body
// leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("failed to read request body")
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %v", err)
	}
	return nil
}

// queryLimit parses ?limit=, falling back to def and capping at ceiling.
func queryLimit(r *http.Request, def, ceiling int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, ceiling), nil
}

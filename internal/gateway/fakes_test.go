package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wellbridge/careguard/internal/audit"
	"github.com/wellbridge/careguard/internal/auth"
	"github.com/wellbridge/careguard/internal/engine"
	"github.com/wellbridge/careguard/internal/types"
)

const (
	ownSession     = "6f1c2a54-5d6b-4a7e-9a38-1d2f3e4c5b6a"
	foreignSession = "0b8e7c1d-2f3a-4b5c-8d9e-0f1a2b3c4d5e"
)

var (
	patient = types.TenantContext{TenantID: "tenant-a", UserID: "user-1", Role: types.RolePatient}
	auditor = types.TenantContext{TenantID: "tenant-a", UserID: "auditor-1", Role: types.RoleAuditor}
)

type fakeSessions struct {
	mu       sync.Mutex
	created  []string
	sessions []types.Session
	history  []types.Message
	saved    []types.Message
	saveErr  error
	err      error
}

func (f *fakeSessions) CreateSession(ctx context.Context, tc types.TenantContext, title string) (types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.Session{}, f.err
	}
	f.created = append(f.created, title)
	return types.Session{ID: ownSession, Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}, nil
}

func (f *fakeSessions) ListSessions(ctx context.Context, tc types.TenantContext, limit int) ([]types.Session, error) {
	return f.sessions, f.err
}

func (f *fakeSessions) SessionExists(ctx context.Context, tc types.TenantContext, sessionID string) (bool, error) {
	return sessionID == ownSession, f.err
}

func (f *fakeSessions) History(ctx context.Context, tc types.TenantContext, sessionID string, limit int) ([]types.Message, error) {
	return f.history, f.err
}

func (f *fakeSessions) SaveMessage(ctx context.Context, tc types.TenantContext, m types.Message) (types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return types.Message{}, f.saveErr
	}
	m.ID = "msg-opener"
	f.saved = append(f.saved, m)
	return m, nil
}

type fakeRecords struct {
	saved     []types.Record
	embedding []float32
	err       error
}

func (f *fakeRecords) InsertRecord(ctx context.Context, tc types.TenantContext, rec types.Record, embedding []float32) (types.Record, error) {
	if f.err != nil {
		return types.Record{}, f.err
	}
	rec.ID = "rec-1"
	f.saved = append(f.saved, rec)
	f.embedding = embedding
	return rec, nil
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeTurns struct {
	result *engine.TurnResult
	err    error
	reqs   []engine.TurnRequest
}

func (f *fakeTurns) Turn(ctx context.Context, req engine.TurnRequest) (*engine.TurnResult, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

type fakeViolations struct {
	rows []types.Violation
}

func (f *fakeViolations) ListViolations(ctx context.Context, tc types.TenantContext, from, to time.Time, limit int) ([]types.Violation, error) {
	return f.rows, nil
}

var errBoom = errors.New("boom")

type testDeps struct {
	sessions   *fakeSessions
	records    *fakeRecords
	turns      *fakeTurns
	violations *fakeViolations
	embedder   fakeEmbedder
	now        func() time.Time
}

func newTestDeps() *testDeps {
	return &testDeps{
		sessions:   &fakeSessions{},
		records:    &fakeRecords{},
		turns:      &fakeTurns{},
		violations: &fakeViolations{},
	}
}

// server mounts the handler behind a stand-in for the request-id and auth
// middleware. tc == nil means the request is unauthenticated.
func (d *testDeps) server(tc *types.TenantContext) http.Handler {
	h := NewHandler(d.sessions, d.records, d.embedder, d.turns, audit.NewExporter(d.violations))
	if d.now != nil {
		h.now = d.now
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-ID", "req-test")
			if tc != nil {
				r = r.WithContext(auth.ContextWithTenant(r.Context(), *tc))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.Mount(r)
	return r
}

package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/types"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	reqs      []types.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req types.CompletionRequest) (*types.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &types.Completion{Content: content, Provider: "fake"}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeRetriever struct {
	mu sync.Mutex

	semantic     []types.Record
	fullText     []types.Record
	recent       []types.Record
	appointments []types.Appointment
	err          error

	semanticCalls int
	fullTextCalls int
	limits        map[string]int
	tenants       []types.TenantContext
}

func (f *fakeRetriever) note(op string, tc types.TenantContext, limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limits == nil {
		f.limits = map[string]int{}
	}
	f.limits[op] = limit
	f.tenants = append(f.tenants, tc)
}

func (f *fakeRetriever) SemanticSearch(ctx context.Context, tc types.TenantContext, embedding []float32, floor float64, limit int) ([]types.Record, error) {
	f.note("semantic", tc, limit)
	f.semanticCalls++
	return f.semantic, f.err
}

func (f *fakeRetriever) FullTextSearch(ctx context.Context, tc types.TenantContext, query string, limit int) ([]types.Record, error) {
	f.note("fulltext", tc, limit)
	f.fullTextCalls++
	return f.fullText, f.err
}

func (f *fakeRetriever) RecentRecords(ctx context.Context, tc types.TenantContext, limit int) ([]types.Record, error) {
	f.note("recent", tc, limit)
	if limit < len(f.recent) {
		return f.recent[:limit], f.err
	}
	return f.recent, f.err
}

func (f *fakeRetriever) UpcomingAppointments(ctx context.Context, tc types.TenantContext, limit int) ([]types.Appointment, error) {
	f.note("appointments", tc, limit)
	if limit < len(f.appointments) {
		return f.appointments[:limit], f.err
	}
	return f.appointments, f.err
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

var testTenant = types.TenantContext{TenantID: "tenant-a", UserID: "user-1", Role: types.RolePatient}

func newDeps(l *fakeLLM, r *fakeRetriever, e *fakeEmbedder) *Deps {
	cfg := config.DefaultConfig()
	d := &Deps{
		LLM:        l,
		Retriever:  r,
		Retrieval:  func() config.RetrievalConfig { return cfg.Retrieval },
		Generation: func() config.GenerationConfig { return cfg.Generation },
	}
	if e != nil {
		d.Embedder = e
	}
	return d
}

func records(n int) []types.Record {
	out := make([]types.Record, n)
	for i := range out {
		out[i] = types.Record{
			ID:           string(rune('a'+i)) + "-record",
			Title:        "Visit note",
			Content:      "Blood pressure 128/82. Continue current plan. Recheck lipids in six months.",
			RecordType:   "visit_note",
			ProviderName: "Dr. Patel",
			RecordDate:   time.Date(2026, 1, 10+i, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func turn(text string) Turn {
	return Turn{Tenant: testTenant, SessionID: "session-1", Text: text}
}

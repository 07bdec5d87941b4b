package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/guardrail"
	"github.com/wellbridge/careguard/internal/handlers"
	"github.com/wellbridge/careguard/internal/intent"
	"github.com/wellbridge/careguard/internal/policy"
	"github.com/wellbridge/careguard/internal/router"
	"github.com/wellbridge/careguard/internal/types"
)

const classifyPrefix = "Classify this message: "

// scriptedLLM answers classifier requests from a text→intent table and
// handler requests from a fixed reply.
type scriptedLLM struct {
	mu              sync.Mutex
	intents         map[string]types.Intent
	classifierErr   error
	reply           string
	classifierCalls int
	handlerCalls    int

	// blockOn makes the classifier wait on release for that text.
	blockOn string
	entered chan struct{}
	release chan struct{}

	onHandler func()
}

func (s *scriptedLLM) Complete(ctx context.Context, req types.CompletionRequest) (*types.Completion, error) {
	if req.Role == config.RoleHandler {
		s.mu.Lock()
		s.handlerCalls++
		hook := s.onHandler
		reply := s.reply
		s.mu.Unlock()
		if hook != nil {
			hook()
		}
		return &types.Completion{Content: reply, Provider: "fake"}, nil
	}

	text := strings.TrimPrefix(req.Messages[len(req.Messages)-1].Content, classifyPrefix)
	s.mu.Lock()
	s.classifierCalls++
	err := s.classifierErr
	in, ok := s.intents[text]
	block := s.blockOn != "" && text == s.blockOn
	s.mu.Unlock()

	if block {
		s.entered <- struct{}{}
		<-s.release
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		in = types.IntentGeneral
	}
	return &types.Completion{
		Content:  fmt.Sprintf(`{"intent":%q,"confidence":0.95,"reasoning":"scripted"}`, in),
		Provider: "fake",
	}, nil
}

func (s *scriptedLLM) counts() (classifier, handler int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifierCalls, s.handlerCalls
}

type savedMessage struct {
	msg    types.Message
	ctxErr error
}

type memStore struct {
	mu         sync.Mutex
	history    []types.Message
	historyErr error
	userErr    error
	saved      []savedMessage
}

func (m *memStore) History(ctx context.Context, tc types.TenantContext, sessionID string, limit int) ([]types.Message, error) {
	return m.history, m.historyErr
}

func (m *memStore) SaveMessage(ctx context.Context, tc types.TenantContext, msg types.Message) (types.Message, error) {
	if msg.Role == types.RoleUser && m.userErr != nil {
		return types.Message{}, m.userErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, savedMessage{msg: msg, ctxErr: ctx.Err()})
	return msg, nil
}

func (m *memStore) messages() []savedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]savedMessage(nil), m.saved...)
}

type stubRetriever struct{}

func (stubRetriever) SemanticSearch(ctx context.Context, tc types.TenantContext, embedding []float32, floor float64, limit int) ([]types.Record, error) {
	return nil, nil
}

func (stubRetriever) FullTextSearch(ctx context.Context, tc types.TenantContext, query string, limit int) ([]types.Record, error) {
	return nil, nil
}

func (stubRetriever) RecentRecords(ctx context.Context, tc types.TenantContext, limit int) ([]types.Record, error) {
	return []types.Record{{ID: "rec-1", Title: "Visit note", Content: "Blood pressure 128/82.", RecordType: "visit_note"}}, nil
}

func (stubRetriever) UpcomingAppointments(ctx context.Context, tc types.TenantContext, limit int) ([]types.Appointment, error) {
	return []types.Appointment{{ID: "appt-1", Title: "Follow-up", StartsAt: time.Now().Add(72 * time.Hour)}}, nil
}

type recordedViolation struct {
	tc        types.TenantContext
	sessionID string
	raw       string
	ruleID    string
}

type fakeRecorder struct {
	mu         sync.Mutex
	violations []recordedViolation
}

func (f *fakeRecorder) RecordViolation(ctx context.Context, tc types.TenantContext, sessionID, raw, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, recordedViolation{tc, sessionID, raw, ruleID})
	return nil
}

type denyGate struct {
	calls int
}

func (d *denyGate) Allow(ctx context.Context, tc types.TenantContext, in types.Intent) policy.Decision {
	d.calls++
	return policy.Decision{Reason: "denied for test"}
}

var errStoreDown = errors.New("store down")

type harness struct {
	engine   *Engine
	llm      *scriptedLLM
	store    *memStore
	recorder *fakeRecorder
}

func newHarness(llm *scriptedLLM, gate PolicyGate) *harness {
	cfg := config.DefaultConfig()
	store := &memStore{}
	rec := &fakeRecorder{}

	cls := intent.NewClassifier(llm, func() config.ClassifierConfig { return cfg.Classifier }, nil)
	rt := router.New(&handlers.Deps{
		LLM:        llm,
		Retriever:  stubRetriever{},
		Retrieval:  func() config.RetrievalConfig { return cfg.Retrieval },
		Generation: func() config.GenerationConfig { return cfg.Generation },
	})
	scanner := guardrail.NewScanner(guardrail.DefaultRuleSet(), rec)

	e := New(store, cls, rt, gate, scanner, func() config.EngineConfig { return cfg.Engine }, nil)
	return &harness{engine: e, llm: llm, store: store, recorder: rec}
}

var (
	patient   = types.TenantContext{TenantID: "tenant-a", UserID: "user-1", Role: types.RolePatient}
	sessionID = "6f1c2a54-5d6b-4a7e-9a38-1d2f3e4c5b6a"
	otherID   = "0b8e7c1d-2f3a-4b5c-8d9e-0f1a2b3c4d5e"
)

// fixedClassifier skips the model and returns one intent, valid or not.
type fixedClassifier struct{ intent types.Intent }

func (f fixedClassifier) Classify(ctx context.Context, text string, history []types.Message) intent.Result {
	return intent.Result{Intent: f.intent, Confidence: 1}
}

// Package engine runs one user turn end to end: classify, route, handle,
// scan, persist. Turns in the same session are processed in submission order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/guardrail"
	"github.com/wellbridge/careguard/internal/handlers"
	"github.com/wellbridge/careguard/internal/intent"
	"github.com/wellbridge/careguard/internal/policy"
	"github.com/wellbridge/careguard/internal/telemetry"
	"github.com/wellbridge/careguard/internal/types"
)

var (
	ErrInvalidTenant  = errors.New("tenant context is incomplete")
	ErrEmptyText      = errors.New("message text is empty")
	ErrTextTooLong    = errors.New("message text is too long")
	ErrInvalidSession = errors.New("session id is not valid")
)

type MessageStore interface {
	History(ctx context.Context, tc types.TenantContext, sessionID string, limit int) ([]types.Message, error)
	SaveMessage(ctx context.Context, tc types.TenantContext, m types.Message) (types.Message, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string, history []types.Message) intent.Result
}

type Router interface {
	Route(intent types.Intent) handlers.Handler
	Refusal() handlers.Handler
}

type PolicyGate interface {
	Allow(ctx context.Context, tc types.TenantContext, intent types.Intent) policy.Decision
}

type Scanner interface {
	Scan(ctx context.Context, tc types.TenantContext, sessionID, candidate string) (guardrail.Result, error)
}

type TurnRequest struct {
	Tenant    types.TenantContext
	SessionID string
	Text      string
}

// TurnResult is the finalized assistant reply. Message.Content has already
// passed the guardrail when it came from the generation model.
type TurnResult struct {
	Message      types.Message
	Classified   intent.Result
	Handler      string
	PolicyDenied bool
	RuleID       string
	Sources      []string
}

type Engine struct {
	store      MessageStore
	classifier Classifier
	router     Router
	gate       PolicyGate
	scanner    Scanner
	cfg        func() config.EngineConfig
	metrics    *telemetry.Metrics
	slots      *sessionSlots
}

// New builds an engine. gate may be nil, in which case every intent proceeds
// to its handler.
func New(store MessageStore, classifier Classifier, router Router, gate PolicyGate, scanner Scanner, cfg func() config.EngineConfig, metrics *telemetry.Metrics) *Engine {
	return &Engine{
		store:      store,
		classifier: classifier,
		router:     router,
		gate:       gate,
		scanner:    scanner,
		cfg:        cfg,
		metrics:    metrics,
		slots:      newSessionSlots(),
	}
}

// Turn answers one user message. It returns an error only when the request
// itself is unusable or the user message cannot be stored; classification,
// generation and guardrail outcomes are always folded into the result.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	cfg := e.cfg()
	tc := req.Tenant

	if !tc.Valid() {
		return nil, ErrInvalidTenant
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if cfg.MaxMessageLen > 0 && utf8.RuneCountInString(text) > cfg.MaxMessageLen {
		return nil, ErrTextTooLong
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		return nil, ErrInvalidSession
	}

	release, err := e.slots.acquire(ctx, tc.TenantID+"/"+req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("wait for session: %w", err)
	}
	defer release()

	log := slog.With("tenant_id", tc.TenantID, "user_id", tc.UserID, "session_id", req.SessionID)

	history, err := e.store.History(ctx, tc, req.SessionID, cfg.HistoryLimit)
	if err != nil {
		log.Warn("history load failed, classifying without context", "error", err)
		history = nil
	}

	if _, err := e.store.SaveMessage(ctx, tc, types.Message{
		SessionID: req.SessionID,
		Role:      types.RoleUser,
		Content:   text,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	cls := e.classifier.Classify(ctx, text, history)
	res := &TurnResult{Classified: cls}

	h := e.router.Route(cls.Intent)
	if cls.Intent.Generates() && e.gate != nil {
		if d := e.gate.Allow(ctx, tc, cls.Intent); !d.Allowed {
			log.Info("turn denied by policy", "intent", cls.Intent, "reason", d.Reason)
			e.metrics.RecordPolicyDenied(string(cls.Intent))
			res.PolicyDenied = true
			h = e.router.Refusal()
		}
	}
	res.Handler = h.Name()

	out := h.Handle(ctx, handlers.Turn{
		Tenant:    tc,
		SessionID: req.SessionID,
		Text:      text,
		History:   history,
	})

	msg := types.Message{
		ID:               uuid.NewString(),
		SessionID:        req.SessionID,
		Role:             types.RoleAssistant,
		Content:          out.Content,
		Intent:           out.Intent,
		ActionCards:      out.ActionCards,
		SuggestedReplies: out.SuggestedReplies,
		CreatedAt:        time.Now().UTC(),
	}
	res.Sources = out.Sources

	if out.Generated {
		scan, err := e.scanner.Scan(ctx, tc, req.SessionID, out.Content)
		if err != nil {
			log.Error("guardrail audit write failed", "rule", scan.RuleID, "error", err)
		}
		msg.Content = scan.Content
		msg.GuardrailTriggered = scan.Triggered
		if scan.Triggered {
			res.RuleID = scan.RuleID
			res.Sources = nil
		}
	}

	// Once assembled and scanned, the reply is stored even if the caller left.
	timeout := cfg.PersistTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if _, err := e.store.SaveMessage(pctx, tc, msg); err != nil {
		log.Error("persist assistant message failed", "message_id", msg.ID, "error", err)
	}
	res.Message = msg

	elapsed := time.Since(start)
	e.metrics.RecordTurn(telemetry.TurnLabels{
		Intent:             string(cls.Intent),
		GuardrailTriggered: msg.GuardrailTriggered,
		DurationMs:         float64(elapsed.Milliseconds()),
	})
	log.Info("turn completed",
		"intent", cls.Intent,
		"handler", res.Handler,
		"classifier_fallback", cls.Fallback,
		"guardrail_triggered", msg.GuardrailTriggered,
		"rule", res.RuleID,
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

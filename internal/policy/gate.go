// Package policy gates classified intents with tenant-authored Rego rules.
// A denied turn is answered by the refusal handler; it is never an error.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/types"
)

const query = "[data.careguard.policy.allow, data.careguard.policy.reason]"

// Input is the document the policy sees as `input`.
type Input struct {
	Tenant string `json:"tenant"`
	User   string `json:"user"`
	Role   string `json:"role"`
	Intent string `json:"intent"`
	Hour   int    `json:"hour"`
	Day    string `json:"day"`
}

type Decision struct {
	Allowed bool
	Reason  string
}

// Gate evaluates the compiled policy bundle. It is safe for concurrent use
// and may be reloaded while turns are in flight.
type Gate struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
	now      func() time.Time
}

// NewGate creates a gate. Call Load to compile the bundle.
func NewGate(cfg func() config.PolicyConfig) *Gate {
	return &Gate{cfg: cfg, now: time.Now}
}

func (g *Gate) Enabled() bool { return g.cfg().Enabled }

// Load compiles the .rego files under the configured bundle path. On failure
// the previously compiled policy stays active.
func (g *Gate) Load() error {
	cfg := g.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := g.LoadModules(modules); err != nil {
		return err
	}
	slog.Info("intent policy loaded", "modules", len(modules))
	return nil
}

// LoadModules compiles the given module sources.
func (g *Gate) LoadModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	g.mu.Lock()
	g.prepared = &prepared
	g.mu.Unlock()
	return nil
}

// Evaluate runs the policy against input. With nothing loaded it denies.
func (g *Gate) Evaluate(ctx context.Context, input Input) (bool, string, error) {
	g.mu.RLock()
	prepared := g.prepared
	g.mu.RUnlock()

	if prepared == nil {
		return false, "no policies loaded", nil
	}

	timeout := g.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, "", fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	// [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return allowed, reason, nil
}

// Allow decides whether a turn classified as intent may proceed to its
// handler. A disabled gate allows everything; an evaluation error denies.
func (g *Gate) Allow(ctx context.Context, tc types.TenantContext, intent types.Intent) Decision {
	if !g.Enabled() {
		return Decision{Allowed: true}
	}

	now := g.now().UTC()
	allowed, reason, err := g.Evaluate(ctx, Input{
		Tenant: tc.TenantID,
		User:   tc.UserID,
		Role:   tc.Role,
		Intent: string(intent),
		Hour:   now.Hour(),
		Day:    now.Weekday().String(),
	})
	if err != nil {
		slog.Error("policy evaluation failed", "tenant_id", tc.TenantID, "intent", intent, "error", err)
		return Decision{Reason: "policy evaluation failed"}
	}
	return Decision{Allowed: allowed, Reason: reason}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/llm/adapters"
	"github.com/wellbridge/careguard/internal/telemetry"
	"github.com/wellbridge/careguard/internal/types"
)

var (
	ErrNoProvider  = errors.New("llm: no provider available")
	ErrCircuitOpen = errors.New("llm: all provider circuits open")
)

// Completer is the only way the rest of the module reaches a generation model.
type Completer interface {
	Complete(ctx context.Context, req types.CompletionRequest) (*types.Completion, error)
}

// Client resolves provider routes, fails over between them, and retries a
// failed call with exponential backoff.
type Client struct {
	registry *Registry
	health   *HealthTracker
	models   func() *config.ModelsConfig
	cfg      func() config.GenerationConfig
	metrics  *telemetry.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(registry *Registry, health *HealthTracker, models func() *config.ModelsConfig, cfg func() config.GenerationConfig, metrics *telemetry.Metrics) *Client {
	return &Client{
		registry: registry,
		health:   health,
		models:   models,
		cfg:      cfg,
		metrics:  metrics,
		sleep:    sleepCtx,
	}
}

// Complete sends req to the route for req.Role. At most cfg.MaxRetries
// additional attempts are made after the first failure.
func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (*types.Completion, error) {
	cfg := c.cfg()
	attempts := 1 + cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := cfg.RetryBackoff << (attempt - 1)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("retry wait: %w", err)
			}
			slog.Debug("retrying generation", "role", req.Role, "attempt", attempt+1, "error", lastErr)
		}

		comp, err := c.attempt(ctx, req, cfg.Timeout)
		if err == nil {
			return comp, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return nil, lastErr
}

// attempt tries every available route once, primary first.
func (c *Client) attempt(ctx context.Context, req types.CompletionRequest, timeout time.Duration) (*types.Completion, error) {
	routes, err := ResolveRoutes(c.models(), c.registry, req.Role)
	if err != nil {
		return nil, err
	}

	var lastErr error
	tried := 0
	for _, route := range routes {
		if c.health != nil && !c.health.Acquire(route.Provider) {
			continue
		}
		tried++

		comp, err := c.send(ctx, route, req, timeout)
		if err == nil {
			if c.health != nil {
				c.health.RecordSuccess(route.Provider)
			}
			return comp, nil
		}
		if c.health != nil {
			c.health.RecordFailure(route.Provider)
		}
		slog.Warn("generation provider failed", "provider", route.Provider, "role", req.Role, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if tried == 0 {
		return nil, ErrCircuitOpen
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, route Route, req types.CompletionRequest, timeout time.Duration) (*types.Completion, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req.Model = route.Model
	start := time.Now()

	httpReq, err := route.Adapter.BuildRequest(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", route.Provider, err)
	}
	resp, err := route.Adapter.SendRequest(httpReq)
	if err != nil {
		c.metrics.RecordGeneration(telemetry.GenerationLabels{
			Provider:   route.Provider,
			Status:     "transport_error",
			DurationMs: float64(time.Since(start).Milliseconds()),
		})
		return nil, fmt.Errorf("send %s request: %w", route.Provider, err)
	}
	comp, err := route.Adapter.ParseResponse(resp)
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := telemetry.GenerationLabels{
		Provider:   route.Provider,
		Status:     status,
		DurationMs: float64(time.Since(start).Milliseconds()),
	}
	if comp != nil {
		labels.PromptTokens = comp.Usage.PromptTokens
		labels.CompletionTokens = comp.Usage.CompletionTokens
	}
	c.metrics.RecordGeneration(labels)
	if err != nil {
		return nil, err
	}
	return comp, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrNoProvider) {
		return false
	}
	var se *adapters.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

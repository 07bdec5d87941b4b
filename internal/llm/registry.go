package llm

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/llm/adapters"
)

// Registry maps configured provider names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapters.ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]adapters.ProviderAdapter),
	}
}

func (r *Registry) Register(name string, adapter adapters.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (adapters.ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Replace swaps in the adapters of other, used on config reload.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	next := make(map[string]adapters.ProviderAdapter, len(other.adapters))
	for k, v := range other.adapters {
		next[k] = v
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()
}

// BuildFromConfig builds provider adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	if provCfg == nil {
		return registry
	}
	for name, cfg := range provCfg.Providers {
		maxConns := cfg.MaxConcurrent
		if maxConns <= 0 {
			maxConns = 16
		}
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxConns,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter adapters.ProviderAdapter
		switch cfg.Type {
		case config.ProviderAnthropic:
			adapter = adapters.NewAnthropicAdapter(cfg, client)
		default:
			adapter = adapters.NewOpenAIAdapter(cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}

// Route is one candidate provider for a model role.
type Route struct {
	Provider string
	Adapter  adapters.ProviderAdapter
	Model    string
}

// ResolveRoutes returns the registered routes for role, primary first.
func ResolveRoutes(modelsCfg *config.ModelsConfig, registry *Registry, role string) ([]Route, error) {
	if modelsCfg == nil {
		return nil, fmt.Errorf("%w: no models configured", ErrNoProvider)
	}
	mapping, ok := modelsCfg.Models[role]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model role %q", ErrNoProvider, role)
	}

	var routes []Route
	for _, pr := range append([]config.ProviderRoute{mapping.Primary}, mapping.Fallback...) {
		if adapter, ok := registry.Get(pr.Provider); ok {
			routes = append(routes, Route{Provider: pr.Provider, Adapter: adapter, Model: pr.Model})
		}
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no registered provider for role %q", ErrNoProvider, role)
	}
	return routes, nil
}

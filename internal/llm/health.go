package llm

import (
	"sort"
	"sync"
	"time"
)

// HealthTracker keeps one circuit breaker per configured provider name.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// Breaker returns (or lazily creates) the circuit breaker for a provider.
func (ht *HealthTracker) Breaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	ht.breakers[provider] = cb
	return cb
}

func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.Breaker(provider).Available()
}

func (ht *HealthTracker) Acquire(provider string) bool {
	return ht.Breaker(provider).Allow()
}

func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.Breaker(provider).RecordSuccess()
}

func (ht *HealthTracker) RecordFailure(provider string) {
	ht.Breaker(provider).RecordFailure()
}

// ProviderHealth is one row of Snapshot.
type ProviderHealth struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
}

// Snapshot lists the circuit state of every provider seen so far, sorted by name.
func (ht *HealthTracker) Snapshot() []ProviderHealth {
	ht.mu.RLock()
	names := make([]string, 0, len(ht.breakers))
	for name := range ht.breakers {
		names = append(names, name)
	}
	ht.mu.RUnlock()
	sort.Strings(names)

	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		out = append(out, ProviderHealth{Provider: name, State: ht.Breaker(name).State().String()})
	}
	return out
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the careguard service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TurnTotal               *prometheus.CounterVec
	TurnDurationMs          *prometheus.HistogramVec
	ClassifierFallbackTotal *prometheus.CounterVec
	GuardrailViolationTotal *prometheus.CounterVec
	GenerationTotal         *prometheus.CounterVec
	GenerationDurationMs    *prometheus.HistogramVec
	TokensTotal             *prometheus.CounterVec
	PolicyDeniedTotal       *prometheus.CounterVec
	RateLimitHitsTotal      *prometheus.CounterVec
	AuditWriteFailures      prometheus.Counter
}

// NewMetrics creates and registers all metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "careguard_turn_total",
			Help: "Total number of user turns answered.",
		}, []string{"intent", "guardrail"}),

		TurnDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "careguard_turn_duration_ms",
			Help:    "End-to-end turn duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"intent"}),

		ClassifierFallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "careguard_classifier_fallback_total",
			Help: "Turns defaulted to MEDICAL_ADVICE by the classifier, by reason.",
		}, []string{"reason"}),

		GuardrailViolationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "careguard_guardrail_violation_total",
			Help: "Generated responses replaced by the safe fallback, by rule.",
		}, []string{"rule"}),

		GenerationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "careguard_generation_total",
			Help: "Generation provider calls, by provider and outcome.",
		}, []string{"provider", "status"}),

		GenerationDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "careguard_generation_duration_ms",
			Help:    "Generation provider latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"provider"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "careguard_tokens_total",
			Help: "Total tokens exchanged with generation providers.",
		}, []string{"provider", "direction"}),

		PolicyDeniedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "careguard_policy_denied_total",
			Help: "Turns diverted to the refusal path by tenant policy.",
		}, []string{"intent"}),

		RateLimitHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "careguard_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"dimension"}),

		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "careguard_audit_write_failures_total",
			Help: "Guardrail violations that could not be persisted.",
		}),
	}
}

// TurnLabels holds the values recorded for a finished turn.
type TurnLabels struct {
	Intent             string
	GuardrailTriggered bool
	DurationMs         float64
}

func (m *Metrics) RecordTurn(l TurnLabels) {
	if m == nil {
		return
	}
	guard := "pass"
	if l.GuardrailTriggered {
		guard = "triggered"
	}
	m.TurnTotal.WithLabelValues(l.Intent, guard).Inc()
	m.TurnDurationMs.WithLabelValues(l.Intent).Observe(l.DurationMs)
}

func (m *Metrics) RecordClassifierFallback(reason string) {
	if m == nil {
		return
	}
	m.ClassifierFallbackTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordViolation(rule string) {
	if m == nil {
		return
	}
	m.GuardrailViolationTotal.WithLabelValues(rule).Inc()
}

// GenerationLabels describes one provider call.
type GenerationLabels struct {
	Provider         string
	Status           string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
}

func (m *Metrics) RecordGeneration(l GenerationLabels) {
	if m == nil {
		return
	}
	m.GenerationTotal.WithLabelValues(l.Provider, l.Status).Inc()
	m.GenerationDurationMs.WithLabelValues(l.Provider).Observe(l.DurationMs)
	if l.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Provider, "prompt").Add(float64(l.PromptTokens))
	}
	if l.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Provider, "completion").Add(float64(l.CompletionTokens))
	}
}

func (m *Metrics) RecordPolicyDenied(intent string) {
	if m == nil {
		return
	}
	m.PolicyDeniedTotal.WithLabelValues(intent).Inc()
}

func (m *Metrics) RecordRateLimitHit(dimension string) {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.WithLabelValues(dimension).Inc()
}

func (m *Metrics) RecordAuditWriteFailure() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}

// Package audit records and exports guardrail violations.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/wellbridge/careguard/internal/telemetry"
	"github.com/wellbridge/careguard/internal/types"
)

// ViolationStore is the append-only persistence the recorder writes through.
type ViolationStore interface {
	InsertViolation(ctx context.Context, tc types.TenantContext, v types.Violation) (types.Violation, error)
}

// Recorder writes one violation row per guardrail trigger.
type Recorder struct {
	store    ViolationStore
	metrics  *telemetry.Metrics
	timeout  time.Duration
	maxChars int
}

func NewRecorder(store ViolationStore, metrics *telemetry.Metrics, timeout time.Duration, maxChars int) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Recorder{store: store, metrics: metrics, timeout: timeout, maxChars: maxChars}
}

// Record persists v under tc. The write detaches from the caller's
// cancellation and is bounded by the recorder's own timeout.
func (r *Recorder) Record(ctx context.Context, tc types.TenantContext, v types.Violation) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	v.RawResponse = truncate(v.RawResponse, r.maxChars)
	r.metrics.RecordViolation(v.RuleID)

	saved, err := r.store.InsertViolation(ctx, tc, v)
	if err != nil {
		r.metrics.RecordAuditWriteFailure()
		slog.Error("guardrail violation not recorded",
			"tenant_id", tc.TenantID,
			"user_id", tc.UserID,
			"session_id", v.SessionID,
			"rule", v.RuleID,
			"error", err,
		)
		return fmt.Errorf("insert violation: %w", err)
	}

	slog.Warn("guardrail violation",
		"violation_id", saved.ID,
		"tenant_id", tc.TenantID,
		"user_id", tc.UserID,
		"session_id", v.SessionID,
		"rule", v.RuleID,
		"raw_chars", utf8.RuneCountInString(v.RawResponse),
	)
	return nil
}

// RecordViolation adapts Record to the guardrail scanner.
func (r *Recorder) RecordViolation(ctx context.Context, tc types.TenantContext, sessionID, raw, ruleID string) error {
	return r.Record(ctx, tc, types.Violation{SessionID: sessionID, RawResponse: raw, RuleID: ruleID})
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

package guardrail

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/wellbridge/careguard/internal/types"
)

// Verdict is the pure outcome of checking one candidate.
type Verdict struct {
	RuleID string
	Grade  float64
}

func (v Verdict) Violation() bool { return v.RuleID != "" }

// Check runs every rule in order and then the readability ceiling.
// The first banned-phrase match wins.
func (rs *RuleSet) Check(text string) Verdict {
	for _, r := range rs.Rules {
		if r.Match(text) {
			return Verdict{RuleID: r.ID}
		}
	}
	grade, words := readability(text)
	v := Verdict{Grade: grade}
	if words >= rs.ReadabilityMinWords && grade > rs.ReadabilityCeiling {
		v.RuleID = ReadabilityRuleID
	}
	return v
}

// ViolationRecorder persists one audit row per discarded candidate.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, tc types.TenantContext, sessionID, raw, ruleID string) error
}

// Result is what the caller may show the user.
type Result struct {
	Content   string
	Triggered bool
	RuleID    string
	Grade     float64
}

// Scanner validates fully assembled generated responses.
type Scanner struct {
	rules    atomic.Pointer[RuleSet]
	recorder ViolationRecorder
}

func NewScanner(rs *RuleSet, recorder ViolationRecorder) *Scanner {
	s := &Scanner{recorder: recorder}
	s.rules.Store(rs)
	return s
}

func (s *Scanner) RuleSet() *RuleSet { return s.rules.Load() }

func (s *Scanner) SetRuleSet(rs *RuleSet) {
	if rs != nil {
		s.rules.Store(rs)
	}
}

// Reload replaces the active rule set from path. On error the current
// rule set stays in place.
func (s *Scanner) Reload(path string) error {
	rs, err := LoadRuleSet(path)
	if err != nil {
		return err
	}
	s.SetRuleSet(rs)
	slog.Info("guardrail rule set loaded", "version", rs.Version, "rules", len(rs.Rules))
	return nil
}

// Scan returns the candidate unchanged when it passes. Otherwise it returns
// SafeFallback with Triggered set and records exactly one violation carrying
// the raw candidate. The substitution holds even if recording fails; the
// returned error reports the failed write.
func (s *Scanner) Scan(ctx context.Context, tc types.TenantContext, sessionID, candidate string) (Result, error) {
	v := s.rules.Load().Check(candidate)
	if !v.Violation() {
		return Result{Content: candidate, Grade: v.Grade}, nil
	}

	res := Result{
		Content:   types.SafeFallback,
		Triggered: true,
		RuleID:    v.RuleID,
		Grade:     v.Grade,
	}
	if s.recorder == nil {
		return res, nil
	}
	// The audit row must land even if the caller has gone away.
	if err := s.recorder.RecordViolation(context.WithoutCancel(ctx), tc, sessionID, candidate, v.RuleID); err != nil {
		return res, fmt.Errorf("record guardrail violation: %w", err)
	}
	return res, nil
}

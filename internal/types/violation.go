package types

import "time"

// Violation is one append-only audit row written when the guardrail discards
// a generated candidate.
type Violation struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id,omitempty"`
	RawResponse string    `json:"raw_response"`
	RuleID      string    `json:"pattern_matched"`
	CreatedAt   time.Time `json:"created_at"`
}

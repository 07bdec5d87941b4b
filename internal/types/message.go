package types

import "time"

// SafeFallback is returned verbatim by the refusal path and whenever the
// guardrail discards a generated candidate.
const SafeFallback = "I wasn't able to generate a safe response for that request. " +
	"Please contact your care team directly for medical guidance.\n\n" +
	"You can reach me for factual questions about your own documented records."

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one persisted conversation turn.
type Message struct {
	ID                 string       `json:"id"`
	SessionID          string       `json:"session_id"`
	Role               string       `json:"role"`
	Content            string       `json:"content"`
	Intent             Intent       `json:"intent,omitempty"`
	GuardrailTriggered bool         `json:"guardrail_triggered"`
	ActionCards        []ActionCard `json:"action_cards,omitempty"`
	SuggestedReplies   []string     `json:"suggested_replies,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Session groups the messages of one conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionCard is a structured follow-up prompt shown beside an assistant message.
type ActionCard struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
}

const (
	CardUpload        = "upload"
	CardAddMedication = "add_medication"
	CardEmailTemplate = "email_template"
)

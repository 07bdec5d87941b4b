package types

// ChatMessage is one entry of a prompt sent to a generation provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-neutral request sent to the generation client.
// Role selects the model mapping (classifier, handler, ...) from models.yaml.
type CompletionRequest struct {
	Role        string        `json:"-"`
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	JSONMode    bool          `json:"-"`
}

type Completion struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Float64 and Int return pointers for optional request fields.
func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }

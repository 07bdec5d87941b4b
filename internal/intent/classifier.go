// Package intent maps one user turn to exactly one Intent. Every failure
// mode resolves to MEDICAL_ADVICE.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/llm"
	"github.com/wellbridge/careguard/internal/telemetry"
	"github.com/wellbridge/careguard/internal/types"
)

// Fallback reasons, also used as the metric label.
const (
	FallbackEmptyInput    = "empty_input"
	FallbackTimeout       = "timeout"
	FallbackError         = "error"
	FallbackParse         = "parse"
	FallbackUnknownIntent = "unknown_intent"
	FallbackLowConfidence = "low_confidence"
)

// DefaultIntent is the answer whenever classification cannot be trusted.
const DefaultIntent = types.IntentMedicalAdvice

const priorAssistantChars = 100

// Result is the outcome of one classification. Fallback is empty when the
// model's answer was used as-is.
type Result struct {
	Intent     types.Intent
	Confidence float64
	Reasoning  string
	Fallback   string
}

type Classifier struct {
	llm     llm.Completer
	cfg     func() config.ClassifierConfig
	metrics *telemetry.Metrics
}

func NewClassifier(completer llm.Completer, cfg func() config.ClassifierConfig, metrics *telemetry.Metrics) *Classifier {
	return &Classifier{llm: completer, cfg: cfg, metrics: metrics}
}

type modelAnswer struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Classify never returns an error; failures come back as DefaultIntent with
// Fallback set.
func (c *Classifier) Classify(ctx context.Context, text string, history []types.Message) Result {
	cfg := c.cfg()
	if strings.TrimSpace(text) == "" {
		return c.fallback(FallbackEmptyInput, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	comp, err := c.llm.Complete(ctx, types.CompletionRequest{
		Role:        config.RoleClassifier,
		Messages:    BuildMessages(text, history, cfg.HistoryWindow),
		Temperature: types.Float64(0),
		MaxTokens:   types.Int(cfg.MaxTokens),
		JSONMode:    true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return c.fallback(FallbackTimeout, err)
		}
		return c.fallback(FallbackError, err)
	}

	var ans modelAnswer
	if err := json.Unmarshal([]byte(stripFence(comp.Content)), &ans); err != nil {
		return c.fallback(FallbackParse, err)
	}
	if ans.Confidence == nil || *ans.Confidence < 0 || *ans.Confidence > 1 {
		return c.fallback(FallbackParse, errors.New("confidence missing or out of range"))
	}
	intent, ok := types.ParseIntent(ans.Intent)
	if !ok {
		return c.fallback(FallbackUnknownIntent, fmt.Errorf("intent %q", ans.Intent))
	}
	if *ans.Confidence < cfg.MinConfidence {
		r := c.fallback(FallbackLowConfidence, nil)
		r.Confidence = *ans.Confidence
		slog.Debug("classifier below confidence floor", "model_intent", intent, "confidence", *ans.Confidence)
		return r
	}

	return Result{Intent: intent, Confidence: *ans.Confidence, Reasoning: ans.Reasoning}
}

func (c *Classifier) fallback(reason string, err error) Result {
	c.metrics.RecordClassifierFallback(reason)
	if err != nil {
		slog.Warn("classifier fell back to default intent", "reason", reason, "error", err)
	}
	return Result{Intent: DefaultIntent, Fallback: reason}
}

// BuildMessages assembles the classification prompt: system instructions,
// up to window prior messages tagged [PRIOR], then the message to classify.
// Prior assistant messages are cut to their first 100 characters.
func BuildMessages(text string, history []types.Message, window int) []types.ChatMessage {
	msgs := []types.ChatMessage{{Role: types.RoleSystem, Content: systemPrompt}}

	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	} else if window <= 0 {
		history = nil
	}
	for _, m := range history {
		switch m.Role {
		case types.RoleUser:
			msgs = append(msgs, types.ChatMessage{Role: types.RoleUser, Content: "[PRIOR] " + m.Content})
		case types.RoleAssistant:
			msgs = append(msgs, types.ChatMessage{Role: types.RoleAssistant, Content: "[PRIOR] " + truncateRunes(m.Content, priorAssistantChars)})
		}
	}

	return append(msgs, types.ChatMessage{Role: types.RoleUser, Content: "Classify this message: " + text})
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// stripFence removes a markdown code fence some providers wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Package handlers holds one handler per intent. Only the refusal handler is
// guaranteed never to reach the generation client; every other handler's
// output is untrusted until the guardrail has scanned it.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/llm"
	"github.com/wellbridge/careguard/internal/types"
)

// Apology replaces a generated answer when generation fails after its retry.
const Apology = "I'm sorry, I couldn't put an answer together just now. " +
	"Please try again in a moment, or contact your care team if it can't wait."

// Turn is the input every handler receives. Tenant is always explicit.
type Turn struct {
	Tenant    types.TenantContext
	SessionID string
	Text      string
	History   []types.Message
}

// Output is a handler's candidate answer. Generated marks content that came
// from the generation model and must be scanned before release.
type Output struct {
	Intent           types.Intent
	Content          string
	Generated        bool
	ActionCards      []types.ActionCard
	SuggestedReplies []string
	Sources          []string
}

type Handler interface {
	Name() string
	Handle(ctx context.Context, turn Turn) Output
}

// Retriever is the tenant-scoped read surface handlers may use.
type Retriever interface {
	SemanticSearch(ctx context.Context, tc types.TenantContext, embedding []float32, floor float64, limit int) ([]types.Record, error)
	FullTextSearch(ctx context.Context, tc types.TenantContext, query string, limit int) ([]types.Record, error)
	RecentRecords(ctx context.Context, tc types.TenantContext, limit int) ([]types.Record, error)
	UpcomingAppointments(ctx context.Context, tc types.TenantContext, limit int) ([]types.Appointment, error)
}

// Deps are shared by the model-backed handlers. Embedder may be nil, in
// which case record lookup goes straight to full-text search.
type Deps struct {
	LLM        llm.Completer
	Retriever  Retriever
	Embedder   llm.Embedder
	Retrieval  func() config.RetrievalConfig
	Generation func() config.GenerationConfig
}

// generate sends one prompt through the generation client. The client owns
// the single retry; a false return means the caller should fall back.
func (d *Deps) generate(ctx context.Context, handler, system, user string, history []types.Message, jsonMode bool) (string, bool) {
	cfg := d.Generation()
	msgs := []types.ChatMessage{{Role: types.RoleSystem, Content: system}}
	msgs = append(msgs, priorTurns(history, 4)...)
	msgs = append(msgs, types.ChatMessage{Role: types.RoleUser, Content: user})

	comp, err := d.LLM.Complete(ctx, types.CompletionRequest{
		Role:        config.RoleHandler,
		Messages:    msgs,
		Temperature: types.Float64(cfg.Temperature),
		MaxTokens:   types.Int(cfg.MaxTokens),
		JSONMode:    jsonMode,
	})
	if err != nil {
		slog.Warn("generation failed", "handler", handler, "error", err)
		return "", false
	}
	content := strings.TrimSpace(comp.Content)
	if content == "" {
		slog.Warn("generation returned empty content", "handler", handler)
		return "", false
	}
	return content, true
}

func priorTurns(history []types.Message, n int) []types.ChatMessage {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var out []types.ChatMessage
	for _, m := range history {
		if m.Role == types.RoleUser || m.Role == types.RoleAssistant {
			out = append(out, types.ChatMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

// apology is the generation-failure output for intent.
func apology(intent types.Intent) Output {
	return Output{Intent: intent, Content: Apology, SuggestedReplies: suggestedReplies(intent)}
}

func formatRecords(records []types.Record, maxChars int) string {
	if len(records) == 0 {
		return "(no records found)"
	}
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n\n")
		}
		provider := r.ProviderName
		if provider == "" {
			provider = "unknown provider"
		}
		fmt.Fprintf(&b, "[RECORD %s] %s | %s | %s\n%s", r.ID, r.RecordDate.Format(time.DateOnly), r.RecordType, provider, truncate(r.Content, maxChars))
	}
	return b.String()
}

func formatAppointments(appts []types.Appointment) string {
	if len(appts) == 0 {
		return "(no upcoming appointments)"
	}
	var b strings.Builder
	for i, a := range appts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s on %s", a.Title, a.StartsAt.Format("Monday, January 2 at 3:04 PM"))
		if a.ProviderName != "" {
			fmt.Fprintf(&b, " with %s", a.ProviderName)
		}
		if a.Location != "" {
			fmt.Fprintf(&b, " at %s", a.Location)
		}
	}
	return b.String()
}

func recordIDs(records []types.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func uploadCard(description string) types.ActionCard {
	return types.ActionCard{
		Type:        types.CardUpload,
		Title:       "Upload a document",
		Description: description,
	}
}

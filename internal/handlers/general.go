package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wellbridge/careguard/internal/types"
)

// General handles greetings, app questions and record overviews.
type General struct {
	deps *Deps
}

func NewGeneral(deps *Deps) *General { return &General{deps: deps} }

func (h *General) Name() string { return "general" }

func (h *General) Handle(ctx context.Context, turn Turn) Output {
	intent := types.IntentGeneral
	records, err := h.deps.Retriever.RecentRecords(ctx, turn.Tenant, h.deps.Retrieval().RecentRecords)
	if err != nil {
		slog.Warn("recent records lookup failed", "session_id", turn.SessionID, "error", err)
		records = nil
	}

	user := fmt.Sprintf("Records on file:\n%s\n\nPatient: %s", formatRecords(records, 200), turn.Text)
	content, ok := h.deps.generate(ctx, h.Name(), generalPrompt, user, turn.History, false)
	if !ok {
		return apology(intent)
	}
	return Output{
		Intent:           intent,
		Content:          content,
		Generated:        true,
		SuggestedReplies: suggestedReplies(intent),
		Sources:          recordIDs(records),
	}
}

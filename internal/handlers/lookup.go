package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wellbridge/careguard/internal/types"
)

const recordExcerptChars = 1200

const noMatchingRecords = "I couldn't find anything about that in your records yet. " +
	"If you have a note or result about it, you can upload it and I'll help you read it."

// RecordLookup answers from the patient's own records: semantic search
// first, full-text search when that finds nothing.
type RecordLookup struct {
	deps *Deps
}

func NewRecordLookup(deps *Deps) *RecordLookup { return &RecordLookup{deps: deps} }

func (h *RecordLookup) Name() string { return "record_lookup" }

func (h *RecordLookup) Handle(ctx context.Context, turn Turn) Output {
	intent := types.IntentRecordLookup
	records := h.search(ctx, turn)
	if len(records) == 0 {
		return Output{
			Intent:           intent,
			Content:          noMatchingRecords,
			ActionCards:      []types.ActionCard{uploadCard("Add a note or result so I can look through it")},
			SuggestedReplies: suggestedReplies(intent),
		}
	}

	user := fmt.Sprintf("Records:\n%s\n\nPatient question: %s", formatRecords(records, recordExcerptChars), turn.Text)
	content, ok := h.deps.generate(ctx, h.Name(), recordLookupPrompt, user, turn.History, false)
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

func (h *RecordLookup) search(ctx context.Context, turn Turn) []types.Record {
	cfg := h.deps.Retrieval()

	if h.deps.Embedder != nil {
		vec, err := h.deps.Embedder.Embed(ctx, turn.Text)
		if err != nil {
			slog.Warn("query embedding failed, using full-text search", "session_id", turn.SessionID, "error", err)
		} else {
			records, err := h.deps.Retriever.SemanticSearch(ctx, turn.Tenant, vec, cfg.SimilarityFloor, cfg.SemanticLimit)
			if err != nil {
				slog.Warn("semantic search failed", "session_id", turn.SessionID, "error", err)
			} else if len(records) > 0 {
				return records
			}
		}
	}

	records, err := h.deps.Retriever.FullTextSearch(ctx, turn.Tenant, turn.Text, cfg.FullTextLimit)
	if err != nil {
		slog.Warn("full-text search failed", "session_id", turn.SessionID, "error", err)
		return nil
	}
	return records
}

// JargonExplain explains a medical term, pointing at records that use it.
type JargonExplain struct {
	deps *Deps
}

func NewJargonExplain(deps *Deps) *JargonExplain { return &JargonExplain{deps: deps} }

func (h *JargonExplain) Name() string { return "jargon_explain" }

func (h *JargonExplain) Handle(ctx context.Context, turn Turn) Output {
	intent := types.IntentJargonExplain
	records, err := h.deps.Retriever.FullTextSearch(ctx, turn.Tenant, turn.Text, h.deps.Retrieval().JargonLimit)
	if err != nil {
		slog.Warn("jargon record search failed", "session_id", turn.SessionID, "error", err)
		records = nil
	}

	user := fmt.Sprintf("Records that may use the term:\n%s\n\nPatient: %s", formatRecords(records, 600), turn.Text)
	content, ok := h.deps.generate(ctx, h.Name(), jargonPrompt, user, turn.History, false)
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

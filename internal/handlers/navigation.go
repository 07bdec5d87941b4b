package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/wellbridge/careguard/internal/types"
)

var (
	documentNoun = regexp.MustCompile(`(?i)\b(note|notes|letter|report|discharge|summary|paperwork|document|papers|` +
		`prescription|results?|scan|lab|form|records?)\b`)
	documentHolding = regexp.MustCompile(`(?i)\b(gave|given|got|received|have|has|here|bring|brought|upload|photo|photograph|` +
		`picture|don'?t understand|can'?t read|summarize|explain|help me|help with)\b`)
)

// mentionsDocument reports whether the patient appears to be holding a
// document they could share.
func mentionsDocument(text string) bool {
	return documentNoun.MatchString(text) && documentHolding.MatchString(text)
}

const documentFastPath = "It sounds like you have something from your care team. " +
	"If you upload a photo or scan of it, I can help you read through what it says."

// CareNavigation supports patients sharing news or feelings about their care.
type CareNavigation struct {
	deps *Deps
}

func NewCareNavigation(deps *Deps) *CareNavigation { return &CareNavigation{deps: deps} }

func (h *CareNavigation) Name() string { return "care_navigation" }

func (h *CareNavigation) Handle(ctx context.Context, turn Turn) Output {
	intent := types.IntentCareNavigation
	if mentionsDocument(turn.Text) {
		return Output{
			Intent:           intent,
			Content:          documentFastPath,
			ActionCards:      []types.ActionCard{uploadCard("Photo, PDF or scan of your note")},
			SuggestedReplies: suggestedReplies(intent),
		}
	}

	records, err := h.deps.Retriever.RecentRecords(ctx, turn.Tenant, 3)
	if err != nil {
		slog.Warn("recent records lookup failed", "session_id", turn.SessionID, "error", err)
		records = nil
	}
	user := fmt.Sprintf("Recent records:\n%s\n\nPatient: %s", formatRecords(records, 300), turn.Text)
	content, ok := h.deps.generate(ctx, h.Name(), careNavigationPrompt, user, turn.History, false)
	if !ok {
		return apology(intent)
	}
	out := Output{
		Intent:           intent,
		Content:          content,
		Generated:        true,
		SuggestedReplies: suggestedReplies(intent),
		Sources:          recordIDs(records),
	}
	if len(records) == 0 {
		out.ActionCards = []types.ActionCard{uploadCard("Add a note from your care team")}
	}
	return out
}

var (
	documentWords   = []string{"letter", "report", "scan", "result", "document", "pdf", "image", "photo", "form", "paperwork", "discharge"}
	visitWords      = []string{"appointment", "visit", "saw", "doctor", "hospital", "clinic", "just came from", "just got back", "just had"}
	medicationWords = []string{"prescription", "medication", "medicine", "drug", "pill", "started taking", "prescribed"}
)

const recordsRequestTemplate = "Dear [Provider/Records Department],\n\n" +
	"I am requesting a copy of my medical records, including visit notes, lab results, " +
	"and any imaging reports from my recent visit.\n\n" +
	"Please send the records to me at [your email address].\n\n" +
	"Thank you,\n[Your name]\nDate of birth: [DOB]"

// inferCards picks at most two follow-up cards from what the patient mentioned.
// The email template is the fallback whenever fewer than two apply.
func inferCards(text string) []types.ActionCard {
	lower := strings.ToLower(text)
	var cards []types.ActionCard

	if containsAny(lower, documentWords) || containsAny(lower, visitWords) {
		cards = append(cards, uploadCard("Photo, PDF or scan. I'll help you understand it"))
	}
	if containsAny(lower, medicationWords) {
		cards = append(cards, types.ActionCard{
			Type:        types.CardAddMedication,
			Title:       "Add medication to your records",
			Description: "Store it so you can find it later",
			Payload:     map[string]string{"href": "/records/new?type=prescription"},
		})
	}
	if len(cards) < 2 {
		cards = append(cards, types.ActionCard{
			Type:        types.CardEmailTemplate,
			Title:       "Request records by email",
			Description: "A template you can send to your provider",
			Payload:     map[string]string{"template": recordsRequestTemplate},
		})
	}
	return cards
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// RecordCollection helps patients store information that is not on file yet.
type RecordCollection struct {
	deps *Deps
}

func NewRecordCollection(deps *Deps) *RecordCollection { return &RecordCollection{deps: deps} }

func (h *RecordCollection) Name() string { return "record_collection" }

func (h *RecordCollection) Handle(ctx context.Context, turn Turn) Output {
	intent := types.IntentRecordCollection
	cards := inferCards(turn.Text)

	titles := make([]string, 0, len(cards))
	for _, c := range cards {
		titles = append(titles, c.Title)
	}
	user := fmt.Sprintf("Options shown to the patient: %s\n\nPatient: %s", strings.Join(titles, "; "), turn.Text)

	out := Output{Intent: intent, ActionCards: cards, SuggestedReplies: suggestedReplies(intent)}
	content, ok := h.deps.generate(ctx, h.Name(), recordCollectionPrompt, user, turn.History, false)
	if !ok {
		out.Content = Apology
		return out
	}
	out.Content = content
	out.Generated = true
	return out
}

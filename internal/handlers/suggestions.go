package handlers

import (
	"slices"

	"github.com/wellbridge/careguard/internal/types"
)

var replies = map[types.Intent][]string{
	types.IntentMedicalAdvice:    {"What do my records say?", "Help me prepare questions for my doctor", "Show my upcoming appointments"},
	types.IntentScheduling:       {"Help me prepare for this visit", "What were my last results?"},
	types.IntentRecordLookup:     {"Explain a term in this record", "Help me prepare questions for my doctor"},
	types.IntentJargonExplain:    {"Where is this in my records?", "Explain another term"},
	types.IntentPreVisitPrep:     {"Show my upcoming appointments", "What do my latest records say?"},
	types.IntentCareNavigation:   {"Show my recent records", "Help me prepare questions for my doctor"},
	types.IntentRecordCollection: {"Upload a document", "What records do I have?"},
	types.IntentGeneral:          {"Show my recent records", "Show my upcoming appointments"},
}

// suggestedReplies returns a copy of the static quick replies for intent.
func suggestedReplies(intent types.Intent) []string {
	return slices.Clone(replies[intent])
}

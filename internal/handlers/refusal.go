package handlers

import (
	"context"

	"github.com/wellbridge/careguard/internal/types"
)

// Refusal answers MEDICAL_ADVICE turns with the fixed safe fallback. It has
// no dependencies, so it cannot reach the generation client or the store.
type Refusal struct{}

func (Refusal) Name() string { return "refusal" }

func (Refusal) Handle(_ context.Context, _ Turn) Output {
	return Output{
		Intent:           types.IntentMedicalAdvice,
		Content:          types.SafeFallback,
		SuggestedReplies: suggestedReplies(types.IntentMedicalAdvice),
	}
}

package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wellbridge/careguard/internal/types"
)

const noAppointments = "I don't see any upcoming appointments in your records. " +
	"If you booked one recently, you can add it from the appointments page."

// Scheduling answers questions about the patient's upcoming appointments.
type Scheduling struct {
	deps *Deps
}

func NewScheduling(deps *Deps) *Scheduling { return &Scheduling{deps: deps} }

func (h *Scheduling) Name() string { return "scheduling" }

func (h *Scheduling) Handle(ctx context.Context, turn Turn) Output {
	intent := types.IntentScheduling
	appts, err := h.deps.Retriever.UpcomingAppointments(ctx, turn.Tenant, h.deps.Retrieval().AppointmentLimit)
	if err != nil {
		slog.Warn("appointment lookup failed", "session_id", turn.SessionID, "error", err)
		return apology(intent)
	}
	if len(appts) == 0 {
		return Output{Intent: intent, Content: noAppointments, SuggestedReplies: suggestedReplies(intent)}
	}

	user := fmt.Sprintf("Upcoming appointments:\n%s\n\nPatient: %s", formatAppointments(appts), turn.Text)
	content, ok := h.deps.generate(ctx, h.Name(), schedulingPrompt, user, turn.History, false)
	if !ok {
		return apology(intent)
	}
	return Output{Intent: intent, Content: content, Generated: true, SuggestedReplies: suggestedReplies(intent)}
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wellbridge/careguard/internal/types"
)

// QuestionCount is the exact number of questions a prep answer carries.
const QuestionCount = 3

const (
	noRecordsForPrep = "I'd be glad to help you get ready for your visit. " +
		"I don't have any of your records yet, so I can't base questions on them. " +
		"Upload a recent note or result and I'll turn it into questions for your doctor."

	// prepSafeDefault is used when the model cannot produce exactly three
	// questions. It is static, keeps the three-question shape and is never scanned.
	prepSafeDefault = "I couldn't build questions from your records this time. " +
		"These three are a good place to start at any visit:\n\n" +
		"1. Can you walk me through my most recent results?\n" +
		"2. Has anything in my records changed since my last visit?\n" +
		"3. What information would be helpful for me to bring next time?"

	prepFooter = "\n\nThese questions come from your own records. They are not medical advice."
)

// PreVisitPrep turns recent records into exactly three questions for the
// patient's next visit.
type PreVisitPrep struct {
	deps *Deps
}

func NewPreVisitPrep(deps *Deps) *PreVisitPrep { return &PreVisitPrep{deps: deps} }

func (h *PreVisitPrep) Name() string { return "pre_visit_prep" }

func (h *PreVisitPrep) Handle(ctx context.Context, turn Turn) Output {
	intent := types.IntentPreVisitPrep
	records, next, err := h.load(ctx, turn)
	if err != nil {
		slog.Warn("pre-visit retrieval failed", "session_id", turn.SessionID, "error", err)
		return apology(intent)
	}
	if len(records) == 0 {
		return Output{
			Intent:           intent,
			Content:          noRecordsForPrep,
			ActionCards:      []types.ActionCard{uploadCard("Add a visit note or lab result to tailor your questions")},
			SuggestedReplies: suggestedReplies(intent),
		}
	}

	user := fmt.Sprintf("%s\n\nRecords:\n%s\n\nPatient: %s", appointmentLine(next), formatRecords(records, 500), turn.Text)
	questions, generated := h.questions(ctx, user, turn.History)
	if !generated {
		return apology(intent)
	}
	out := Output{
		Intent:           intent,
		SuggestedReplies: suggestedReplies(intent),
		Sources:          recordIDs(records),
	}
	if len(questions) != QuestionCount {
		slog.Warn("pre-visit questions malformed after re-prompt", "session_id", turn.SessionID, "count", len(questions))
		out.Content = prepSafeDefault
		out.Sources = nil
		return out
	}
	out.Content = formatQuestions(next, questions)
	out.Generated = true
	return out
}

func (h *PreVisitPrep) load(ctx context.Context, turn Turn) ([]types.Record, *types.Appointment, error) {
	var (
		records []types.Record
		appts   []types.Appointment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = h.deps.Retriever.RecentRecords(gctx, turn.Tenant, h.deps.Retrieval().RecentRecords)
		return err
	})
	g.Go(func() error {
		var err error
		appts, err = h.deps.Retriever.UpcomingAppointments(gctx, turn.Tenant, 1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(appts) == 0 {
		return records, nil, nil
	}
	return records, &appts[0], nil
}

// questions asks for the list once and, if the count is wrong, once more
// with a correction. The bool is false only when generation itself failed.
// A wrong count after the correction comes back as-is for the caller to reject.
func (h *PreVisitPrep) questions(ctx context.Context, user string, history []types.Message) ([]string, bool) {
	raw, ok := h.deps.generate(ctx, h.Name(), preVisitPrompt, user, history, true)
	if !ok {
		return nil, false
	}
	qs := parseQuestions(raw)
	if len(qs) == QuestionCount {
		return qs, true
	}

	slog.Debug("pre-visit question count wrong, re-prompting", "count", len(qs))
	retry := append(append([]types.Message{}, history...),
		types.Message{Role: types.RoleUser, Content: user},
		types.Message{Role: types.RoleAssistant, Content: raw},
	)
	raw, ok = h.deps.generate(ctx, h.Name(), preVisitPrompt, preVisitCorrection, retry, true)
	if !ok {
		return nil, false
	}
	return parseQuestions(raw), true
}

func parseQuestions(raw string) []string {
	var body struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil
	}
	out := make([]string, 0, len(body.Questions))
	for _, q := range body.Questions {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func appointmentLine(next *types.Appointment) string {
	if next == nil {
		return "No upcoming appointment is scheduled."
	}
	return "Next appointment:\n" + formatAppointments([]types.Appointment{*next})
}

func formatQuestions(next *types.Appointment, questions []string) string {
	var b strings.Builder
	if next != nil && next.ProviderName != "" {
		fmt.Fprintf(&b, "Here are questions you could ask %s on %s:\n\n", next.ProviderName, next.StartsAt.Format("January 2"))
	} else {
		b.WriteString("Here are questions you could bring to your next visit:\n\n")
	}
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n") + prepFooter
}

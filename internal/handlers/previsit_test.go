package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellbridge/careguard/internal/types"
)

const (
	twoQuestions   = `{"questions":["What did my lipid panel show?","Can you explain my blood pressure reading?"]}`
	threeQuestions = `{"questions":["What did my lipid panel show?","Can you explain my blood pressure reading?","What does the recheck in six months involve?"]}`
	fourQuestions  = `{"questions":["Q1?","Q2?","Q3?","Q4?"]}`
)

func prepRetriever() *fakeRetriever {
	return &fakeRetriever{
		recent: records(5),
		appointments: []types.Appointment{{
			ID:           "appt-1",
			Title:        "Annual physical",
			ProviderName: "Dr. Patel",
			StartsAt:     time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC),
		}},
	}
}

func numbered(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if len(line) > 2 && line[0] >= '1' && line[0] <= '9' && line[1] == '.' {
			n++
		}
	}
	return n
}

func TestPreVisitPrep_ExactlyThree(t *testing.T) {
	l := &fakeLLM{responses: []string{threeQuestions}}
	r := prepRetriever()

	out := NewPreVisitPrep(newDeps(l, r, nil)).Handle(context.Background(), turn("Help me prepare for my physical"))

	assert.True(t, out.Generated)
	assert.Equal(t, 3, numbered(out.Content))
	assert.Contains(t, out.Content, "Dr. Patel")
	assert.Equal(t, 1, l.calls())
	assert.Equal(t, 5, r.limits["recent"])
	assert.Equal(t, 1, r.limits["appointments"])
	assert.Len(t, out.Sources, 5)
	assert.True(t, l.reqs[0].JSONMode)
}

func TestPreVisitPrep_RepromptsOnWrongCount(t *testing.T) {
	for name, first := range map[string]string{"two": twoQuestions, "four": fourQuestions} {
		t.Run(name, func(t *testing.T) {
			l := &fakeLLM{responses: []string{first, threeQuestions}}
			out := NewPreVisitPrep(newDeps(l, prepRetriever(), nil)).Handle(context.Background(), turn("What should I ask my doctor?"))

			assert.True(t, out.Generated)
			assert.Equal(t, 3, numbered(out.Content))
			require.Equal(t, 2, l.calls())

			retry := l.reqs[1].Messages
			assert.Equal(t, preVisitCorrection, retry[len(retry)-1].Content)
			assert.Equal(t, first, retry[len(retry)-2].Content)
		})
	}
}

func TestPreVisitPrep_SafeDefaultWhenStillWrong(t *testing.T) {
	for name, answers := range map[string][]string{
		"two then two":   {twoQuestions, twoQuestions},
		"four then four": {fourQuestions, fourQuestions},
		"garbage":        {"not json", "still not json"},
	} {
		t.Run(name, func(t *testing.T) {
			l := &fakeLLM{responses: answers}
			out := NewPreVisitPrep(newDeps(l, prepRetriever(), nil)).Handle(context.Background(), turn("What should I ask?"))

			assert.False(t, out.Generated)
			assert.Equal(t, prepSafeDefault, out.Content)
			assert.Equal(t, QuestionCount, numbered(out.Content))
			assert.Empty(t, out.Sources)
			assert.Equal(t, 2, l.calls())
			assert.NotContains(t, out.Content, "Q4?")
		})
	}
}

func TestPreVisitPrep_NoRecords(t *testing.T) {
	l := &fakeLLM{responses: []string{threeQuestions}}
	out := NewPreVisitPrep(newDeps(l, &fakeRetriever{}, nil)).Handle(context.Background(), turn("Help me prepare"))

	assert.False(t, out.Generated)
	assert.Zero(t, l.calls())
	require.Len(t, out.ActionCards, 1)
}

func TestPreVisitPrep_RetrievalError(t *testing.T) {
	l := &fakeLLM{responses: []string{threeQuestions}}
	r := prepRetriever()
	r.err = errors.New("db down")

	out := NewPreVisitPrep(newDeps(l, r, nil)).Handle(context.Background(), turn("Help me prepare"))
	assert.Equal(t, Apology, out.Content)
	assert.Zero(t, l.calls())
}

func TestPreVisitPrep_NoAppointmentStillWorks(t *testing.T) {
	l := &fakeLLM{responses: []string{threeQuestions}}
	r := &fakeRetriever{recent: records(2)}

	out := NewPreVisitPrep(newDeps(l, r, nil)).Handle(context.Background(), turn("What should I ask?"))
	assert.True(t, out.Generated)
	assert.Contains(t, out.Content, "your next visit")
}

func TestParseQuestions(t *testing.T) {
	assert.Len(t, parseQuestions(threeQuestions), 3)
	assert.Len(t, parseQuestions(`{"questions":["a"," ","b"]}`), 2)
	assert.Nil(t, parseQuestions("nope"))
}

package gateway

import (
	"time"
	_ "time/tzdata"

	"github.com/wellbridge/careguard/internal/types"
)

const (
	firstWelcome = "and welcome to WellBridge.\n\n" +
		"I'm here to help you before, during, and after your medical visits, " +
		"and to keep track of things so you don't have to remember everything yourself.\n\n" +
		"You can ask me about your own records, get help preparing for an appointment, " +
		"or have a term from a visit note explained. For medical advice, your care team is the right place to go."

	returningWelcome = "and welcome back.\n\n" +
		"Good to have you here again. What would you like to look at today?"
)

var openerReplies = []string{
	"Help me prepare for my next visit",
	"Explain a term from my records",
	"When is my next appointment?",
}

// greeting picks the time-of-day salutation for the caller's local hour.
func greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 17:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// openerMessage is the first assistant message of a new session. It is
// static text and never passes through the model.
func openerMessage(sessionID string, now time.Time, returning bool) types.Message {
	body := firstWelcome
	if returning {
		body = returningWelcome
	}
	return types.Message{
		SessionID:        sessionID,
		Role:             types.RoleAssistant,
		Content:          greeting(now) + ", " + body,
		Intent:           types.IntentGeneral,
		SuggestedReplies: openerReplies,
		CreatedAt:        now.UTC(),
	}
}

// localTime resolves an IANA zone name sent by the client. Unknown or
// empty names fall back to UTC.
func localTime(now time.Time, zone string) time.Time {
	if zone == "" {
		return now.UTC()
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return now.UTC()
	}
	return now.In(loc)
}

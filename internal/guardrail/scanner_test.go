package guardrail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellbridge/careguard/internal/types"
)

type recorded struct {
	tc        types.TenantContext
	sessionID string
	raw       string
	ruleID    string
	ctxErr    error
}

type fakeRecorder struct {
	mu   sync.Mutex
	rows []recorded
	err  error
}

func (f *fakeRecorder) RecordViolation(ctx context.Context, tc types.TenantContext, sessionID, raw, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, recorded{tc: tc, sessionID: sessionID, raw: raw, ruleID: ruleID, ctxErr: ctx.Err()})
	return f.err
}

var testTenant = types.TenantContext{TenantID: "tenant-a", UserID: "user-1"}

func TestDefaultRuleSet(t *testing.T) {
	rs := DefaultRuleSet()
	require.Len(t, rs.Rules, 13)
	assert.Equal(t, "I_diagnose", rs.Rules[0].ID)
	assert.Equal(t, "emergency_directive", rs.Rules[12].ID)
	assert.Equal(t, 8.0, rs.ReadabilityCeiling)
}

func TestCheck_BannedPhraseAnyCase(t *testing.T) {
	rs := DefaultRuleSet()
	for _, text := range []string{
		"I RECOMMEND rest.",
		"i recommend rest.",
		"Honestly, I Recommend rest.",
		"I   recommend rest.",
	} {
		v := rs.Check(text)
		assert.Equal(t, "I_recommend", v.RuleID, text)
	}
}

func TestCheck_WordBoundaries(t *testing.T) {
	rs := DefaultRuleSet()
	// "retake" and "pills" must not trip dosage; "suggestion" must not trip I_suggest.
	for _, text := range []string{
		"Your chart says I suggestion box.",
		"The lab will retake a sample.",
		"Your note lists the pills you brought.",
	} {
		v := rs.Check(text)
		assert.False(t, v.Violation(), "unexpected violation %q on %q", v.RuleID, text)
	}
}

func TestCheck_FirstMatchWins(t *testing.T) {
	rs := DefaultRuleSet()
	// Matches I_recommend (rule 2) and dosage_recommendation (rule 12).
	v := rs.Check("I recommend you take 200 mg daily.")
	assert.Equal(t, "I_recommend", v.RuleID)

	// Matches I_suggest (rule 3) and prescriptive_should (rule 5), suggest appears later in text.
	v = rs.Check("You should take it with food, I suggest.")
	assert.Equal(t, "I_suggest", v.RuleID)
}

func TestCheck_Patterns(t *testing.T) {
	rs := DefaultRuleSet()
	tests := []struct {
		text string
		want string
	}{
		{"This suggests you have anemia.", "diagnostic_this_indicates"},
		{"You probably have a cold.", "you_likely_have"},
		{"Your condition is stable.", "your_condition_is"},
		{"I can prescribe something.", "prescribe"},
		{"You are likely developing a rash.", "you_are_developing"},
		{"Cut out salt.", "dietary_advice"},
		{"Take 2 tablet now.", "dosage_recommendation"},
		{"Seek immediate medical attention.", "emergency_directive"},
		{"You need to stop the medicine.", "prescriptive_should"},
		{"I diagnose this as flu.", "I_diagnose"},
		{"Try this instead of the cream.", "try_this_instead"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rs.Check(tt.text).RuleID, tt.text)
	}
}

func TestCheck_Readability(t *testing.T) {
	rs := DefaultRuleSet()
	dense := "Echocardiographic evaluation demonstrated concentric ventricular hypertrophy " +
		"with preserved ejection fraction and moderate diastolic dysfunction."
	v := rs.Check(dense)
	assert.Equal(t, ReadabilityRuleID, v.RuleID)
	assert.Greater(t, v.Grade, 8.0)

	rs.ReadabilityMinWords = 50
	assert.False(t, rs.Check(dense).Violation(), "short text below min words is not graded")
}

func TestScan_RecommendScenario(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewScanner(DefaultRuleSet(), rec)

	raw := "Based on your labs, I recommend you take ibuprofen twice daily."
	res, err := s.Scan(context.Background(), testTenant, "session-1", raw)
	require.NoError(t, err)

	assert.Equal(t, types.SafeFallback, res.Content)
	assert.True(t, res.Triggered)
	assert.Equal(t, "I_recommend", res.RuleID)

	require.Len(t, rec.rows, 1)
	assert.Equal(t, raw, rec.rows[0].raw)
	assert.Equal(t, "I_recommend", rec.rows[0].ruleID)
	assert.Equal(t, testTenant, rec.rows[0].tc)
	assert.Equal(t, "session-1", rec.rows[0].sessionID)
}

func TestScan_CleanPassesUnchanged(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewScanner(DefaultRuleSet(), rec)

	clean := "Your next visit is on Monday. Bring your list of drugs."
	res, err := s.Scan(context.Background(), testTenant, "session-1", clean)
	require.NoError(t, err)

	assert.Equal(t, clean, res.Content)
	assert.False(t, res.Triggered)
	assert.Empty(t, res.RuleID)
	assert.Empty(t, rec.rows)
}

func TestScan_RecordsDespiteCancelledContext(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewScanner(DefaultRuleSet(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Scan(ctx, testTenant, "session-1", "I diagnose you with flu.")
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	require.Len(t, rec.rows, 1)
	assert.NoError(t, rec.rows[0].ctxErr, "recorder must receive an uncancelled context")
}

func TestScan_RecorderFailureStillSubstitutes(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	s := NewScanner(DefaultRuleSet(), rec)

	res, err := s.Scan(context.Background(), testTenant, "session-1", "I recommend rest.")
	require.Error(t, err)
	assert.Equal(t, types.SafeFallback, res.Content)
	assert.True(t, res.Triggered)
}

func TestParseRuleSet_Errors(t *testing.T) {
	tests := map[string]string{
		"no rules":    "readability_ceiling: 8\nrules: []\n",
		"no ceiling":  "rules:\n  - id: a\n    phrase: x\n",
		"duplicate":   "readability_ceiling: 8\nrules:\n  - id: a\n    phrase: x\n  - id: a\n    phrase: y\n",
		"both":        "readability_ceiling: 8\nrules:\n  - id: a\n    phrase: x\n    pattern: y\n",
		"neither":     "readability_ceiling: 8\nrules:\n  - id: a\n",
		"bad regex":   "readability_ceiling: 8\nrules:\n  - id: a\n    pattern: '(unclosed'\n",
		"reserved id": "readability_ceiling: 8\nrules:\n  - id: readability_grade\n    phrase: x\n",
		"missing id":  "readability_ceiling: 8\nrules:\n  - phrase: x\n",
	}
	for name, doc := range tests {
		_, err := ParseRuleSet([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestScanner_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	s := NewScanner(DefaultRuleSet(), nil)

	require.NoError(t, os.WriteFile(path, []byte("readability_ceiling: 8\nrules:\n  - id: custom\n    phrase: forbidden words\n"), 0o600))
	require.NoError(t, s.Reload(path))
	assert.Equal(t, "custom", s.RuleSet().Check("These are FORBIDDEN  words.").RuleID)

	require.NoError(t, os.WriteFile(path, []byte("rules: ["), 0o600))
	require.Error(t, s.Reload(path))
	assert.Equal(t, "custom", s.RuleSet().Rules[0].ID)
}

func TestPhraseExpression(t *testing.T) {
	tests := []struct {
		phrase string
		want   string
	}{
		{"I recommend", `\bI\s+recommend\b`},
		{"try  this (now)", `\btry\s+this\s+\(now\)`},
		{"try this instead!", `\btry\s+this\s+instead!`},
		{"(see a pharmacist", `\(see\s+a\s+pharmacist\b`},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, phraseExpression(tt.phrase), tt.phrase)
	}
}

func TestCheck_PunctuatedPhraseAtTextEdges(t *testing.T) {
	rs, err := ParseRuleSet([]byte("readability_ceiling: 20\nrules:\n" +
		"  - id: try_instead\n    phrase: \"try this instead!\"\n" +
		"  - id: ask_pharmacist\n    phrase: \"(ask your pharmacist)\"\n"))
	require.NoError(t, err)

	tests := []struct {
		text string
		want string
	}{
		{"Skip the cream and TRY THIS INSTEAD!", "try_instead"},
		{"Try this instead! It works.", "try_instead"},
		{"(Ask your pharmacist)", "ask_pharmacist"},
		{"Retry this instead! later", ""},
		{"Keep trying this instead.", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rs.Check(tt.text).RuleID, tt.text)
	}
}

func TestParseRuleSet_RejectsBlankPhrase(t *testing.T) {
	_, err := ParseRuleSet([]byte("readability_ceiling: 8\nrules:\n  - id: blank\n    phrase: \"   \"\n"))
	assert.Error(t, err)
}

package types

import "testing"

func TestParseIntent(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"MEDICAL_ADVICE", true},
		{"SCHEDULING", true},
		{"RECORD_LOOKUP", true},
		{"JARGON_EXPLAIN", true},
		{"PRE_VISIT_PREP", true},
		{"CARE_NAVIGATION", true},
		{"RECORD_COLLECTION", true},
		{"GENERAL", true},
		{"medical_advice", false},
		{"NOTE_EXPLANATION", false},
		{"", false},
	}

	for _, tt := range tests {
		_, ok := ParseIntent(tt.input)
		if ok != tt.valid {
			t.Errorf("ParseIntent(%q) valid = %v, want %v", tt.input, ok, tt.valid)
		}
	}
}

func TestAllIntentsParse(t *testing.T) {
	all := AllIntents()
	if len(all) != 8 {
		t.Fatalf("expected 8 intents, got %d", len(all))
	}
	seen := make(map[Intent]bool)
	for _, i := range all {
		if seen[i] {
			t.Errorf("duplicate intent %s", i)
		}
		seen[i] = true
		if _, ok := ParseIntent(string(i)); !ok {
			t.Errorf("AllIntents contains unparseable %s", i)
		}
	}
}

func TestIntentGenerates(t *testing.T) {
	if IntentMedicalAdvice.Generates() {
		t.Error("MEDICAL_ADVICE must never reach generation")
	}
	if Intent("BOGUS").Generates() {
		t.Error("unknown intent must not reach generation")
	}
	if !IntentRecordLookup.Generates() {
		t.Error("RECORD_LOOKUP should reach generation")
	}
}

func TestTenantContextValid(t *testing.T) {
	tests := []struct {
		tc    TenantContext
		valid bool
	}{
		{TenantContext{TenantID: "t1", UserID: "u1"}, true},
		{TenantContext{TenantID: "t1"}, false},
		{TenantContext{UserID: "u1"}, false},
		{TenantContext{TenantID: "  ", UserID: "u1"}, false},
		{TenantContext{}, false},
	}
	for _, tt := range tests {
		if got := tt.tc.Valid(); got != tt.valid {
			t.Errorf("%+v.Valid() = %v, want %v", tt.tc, got, tt.valid)
		}
	}
}

func TestTenantContextIsAuditor(t *testing.T) {
	tc := TenantContext{TenantID: "t1", UserID: "u1", Role: RoleAuditor}
	if !tc.IsAuditor() {
		t.Error("expected auditor")
	}
	tc.Role = RolePatient
	if tc.IsAuditor() {
		t.Error("patient is not an auditor")
	}
}

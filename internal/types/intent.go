package types

// Intent is the classified purpose of a single user turn.
type Intent string

const (
	IntentMedicalAdvice    Intent = "MEDICAL_ADVICE"
	IntentScheduling       Intent = "SCHEDULING"
	IntentRecordLookup     Intent = "RECORD_LOOKUP"
	IntentJargonExplain    Intent = "JARGON_EXPLAIN"
	IntentPreVisitPrep     Intent = "PRE_VISIT_PREP"
	IntentCareNavigation   Intent = "CARE_NAVIGATION"
	IntentRecordCollection Intent = "RECORD_COLLECTION"
	IntentGeneral          Intent = "GENERAL"
)

// AllIntents returns every intent in declaration order.
func AllIntents() []Intent {
	return []Intent{
		IntentMedicalAdvice,
		IntentScheduling,
		IntentRecordLookup,
		IntentJargonExplain,
		IntentPreVisitPrep,
		IntentCareNavigation,
		IntentRecordCollection,
		IntentGeneral,
	}
}

// ParseIntent accepts only the exact enumerated names.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentMedicalAdvice, IntentScheduling, IntentRecordLookup, IntentJargonExplain,
		IntentPreVisitPrep, IntentCareNavigation, IntentRecordCollection, IntentGeneral:
		return Intent(s), true
	default:
		return "", false
	}
}

// Generates reports whether turns with this intent may reach the generation model.
func (i Intent) Generates() bool {
	_, ok := ParseIntent(string(i))
	return ok && i != IntentMedicalAdvice
}

// Package router maps a classified intent to the handler that answers it.
package router

import (
	"github.com/wellbridge/careguard/internal/handlers"
	"github.com/wellbridge/careguard/internal/types"
)

// Router is a static intent table. It never calls a model.
type Router struct {
	refusal          handlers.Refusal
	scheduling       *handlers.Scheduling
	recordLookup     *handlers.RecordLookup
	jargonExplain    *handlers.JargonExplain
	preVisitPrep     *handlers.PreVisitPrep
	careNavigation   *handlers.CareNavigation
	recordCollection *handlers.RecordCollection
	general          *handlers.General
}

func New(deps *handlers.Deps) *Router {
	return &Router{
		scheduling:       handlers.NewScheduling(deps),
		recordLookup:     handlers.NewRecordLookup(deps),
		jargonExplain:    handlers.NewJargonExplain(deps),
		preVisitPrep:     handlers.NewPreVisitPrep(deps),
		careNavigation:   handlers.NewCareNavigation(deps),
		recordCollection: handlers.NewRecordCollection(deps),
		general:          handlers.NewGeneral(deps),
	}
}

// Route returns exactly one handler for intent. MEDICAL_ADVICE and any value
// outside the enumeration get the refusal handler.
func (r *Router) Route(intent types.Intent) handlers.Handler {
	switch intent {
	case types.IntentScheduling:
		return r.scheduling
	case types.IntentRecordLookup:
		return r.recordLookup
	case types.IntentJargonExplain:
		return r.jargonExplain
	case types.IntentPreVisitPrep:
		return r.preVisitPrep
	case types.IntentCareNavigation:
		return r.careNavigation
	case types.IntentRecordCollection:
		return r.recordCollection
	case types.IntentGeneral:
		return r.general
	case types.IntentMedicalAdvice:
		return r.refusal
	default:
		return r.refusal
	}
}

// Refusal is the handler used when a turn must not reach the generation model.
func (r *Router) Refusal() handlers.Handler { return r.refusal }

// Package flow owns the per-conversation triage state machine.
package flow

import "github.com/dmirchev92/servicetext/internal/models"

// IsEmergency reports whether the analysis triggers the unconditional
// emergency shortcut.
func IsEmergency(a models.Analysis) bool {
	return a.Urgency == models.UrgencyEmergency || a.Risk.Level == models.RiskCritical
}

// NextState computes the successor state from the current state, the
// understanding of the newest customer message and the refreshed analysis.
// Every reachable (state, input) pair yields a defined next state; COMPLETED
// is the only dead end.
func NextState(current models.ConversationState, u models.UnderstandingResult, a models.Analysis) models.ConversationState {
	// Emergency shortcut applies from any state.
	if IsEmergency(a) {
		return models.StateCompleted
	}

	switch current {
	case models.StateInitialResponse:
		// First contact always advances to awaiting the problem description.
		return models.StateAwaitingDescription
	case models.StateAwaitingDescription:
		if u.Intent == models.IntentProblemDescription {
			return models.StateFollowUpQuestions
		}
		return models.StateAwaitingDescription
	case models.StateFollowUpQuestions, models.StateGatheringDetails:
		if a.ReadyForCallback {
			return models.StateCompleted
		}
		if a.Risk.Level.AtLeast(models.RiskHigh) {
			return models.StateProvidingAdvice
		}
		return models.StateGatheringDetails
	case models.StateProvidingAdvice:
		return models.StateSchedulingVisit
	case models.StateSchedulingVisit:
		return models.StateCompleted
	case models.StateCompleted:
		return models.StateCompleted
	default:
		return models.StateGatheringDetails
	}
}

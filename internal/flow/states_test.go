package flow

import (
	"testing"

	"github.com/dmirchev92/servicetext/internal/models"
)

func analysisWith(urgency models.UrgencyLevel, risk models.RiskLevel, ready bool) models.Analysis {
	return models.Analysis{
		Urgency:          urgency,
		Risk:             models.RiskAssessment{Level: risk},
		ReadyForCallback: ready,
	}
}

func TestIsEmergency(t *testing.T) {
	cases := []struct {
		urgency models.UrgencyLevel
		risk    models.RiskLevel
		want    bool
	}{
		{models.UrgencyEmergency, models.RiskLow, true},
		{models.UrgencyMedium, models.RiskCritical, true},
		{models.UrgencyHigh, models.RiskHigh, false},
		{models.UrgencyLow, models.RiskLow, false},
	}
	for _, c := range cases {
		got := IsEmergency(analysisWith(c.urgency, c.risk, false))
		if got != c.want {
			t.Errorf("IsEmergency(%s, %s) = %v, want %v", c.urgency, c.risk, got, c.want)
		}
	}
}

func TestEmergencyShortcutFromEveryState(t *testing.T) {
	states := []models.ConversationState{
		models.StateInitialResponse,
		models.StateAwaitingDescription,
		models.StateFollowUpQuestions,
		models.StateGatheringDetails,
		models.StateProvidingAdvice,
		models.StateSchedulingVisit,
		models.StateCompleted,
	}
	emergency := analysisWith(models.UrgencyEmergency, models.RiskCritical, false)
	for _, s := range states {
		if next := NextState(s, models.UnderstandingResult{}, emergency); next != models.StateCompleted {
			t.Errorf("emergency from %s: got %s, want %s", s, next, models.StateCompleted)
		}
	}
}

func TestNextStateTransitions(t *testing.T) {
	calm := analysisWith(models.UrgencyMedium, models.RiskLow, false)
	risky := analysisWith(models.UrgencyHigh, models.RiskHigh, false)
	ready := analysisWith(models.UrgencyMedium, models.RiskLow, true)
	problem := models.UnderstandingResult{Intent: models.IntentProblemDescription}
	question := models.UnderstandingResult{Intent: models.IntentQuestion}

	cases := []struct {
		name    string
		current models.ConversationState
		u       models.UnderstandingResult
		a       models.Analysis
		want    models.ConversationState
	}{
		{"initial always advances", models.StateInitialResponse, question, calm, models.StateAwaitingDescription},
		{"awaiting on problem", models.StateAwaitingDescription, problem, calm, models.StateFollowUpQuestions},
		{"awaiting stays without problem", models.StateAwaitingDescription, question, calm, models.StateAwaitingDescription},
		{"follow-up to gathering", models.StateFollowUpQuestions, problem, calm, models.StateGatheringDetails},
		{"follow-up high risk to advice", models.StateFollowUpQuestions, problem, risky, models.StateProvidingAdvice},
		{"gathering ready completes", models.StateGatheringDetails, problem, ready, models.StateCompleted},
		{"gathering stays", models.StateGatheringDetails, question, calm, models.StateGatheringDetails},
		{"advice to scheduling", models.StateProvidingAdvice, question, calm, models.StateSchedulingVisit},
		{"scheduling completes", models.StateSchedulingVisit, question, calm, models.StateCompleted},
		{"completed is terminal", models.StateCompleted, problem, calm, models.StateCompleted},
	}
	for _, c := range cases {
		if got := NextState(c.current, c.u, c.a); got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestNextStateTotality(t *testing.T) {
	// An unrecognized state still yields a defined successor.
	got := NextState(models.ConversationState("bogus"), models.UnderstandingResult{}, analysisWith(models.UrgencyMedium, models.RiskLow, false))
	if got != models.StateGatheringDetails {
		t.Errorf("unknown state: got %s, want %s", got, models.StateGatheringDetails)
	}
}

// Package response implements the response generator of the ServiceText
// triage engine: it chooses a response category, renders the next outbound
// message in Bulgarian and emits any side-effecting follow-up actions.
package response

import (
	"log/slog"
	"time"

	"github.com/dmirchev92/servicetext/internal/flow"
	"github.com/dmirchev92/servicetext/internal/models"
)

// Reminder delays keyed by urgency tier. Emergency urgency and critical risk
// form the top two tiers.
const (
	reminderEmergency = 5 * time.Minute
	reminderCritical  = 10 * time.Minute
	reminderHigh      = 30 * time.Minute
	reminderMedium    = 2 * time.Hour
	reminderLow       = 24 * time.Hour
)

const fallbackConfidence = 0.1

// Generator is the stateless response generator. The business context is
// fetched once per generation by the caller and passed in read-only.
type Generator struct{}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Greeting renders the conversation-opening message.
func (g *Generator) Greeting(bctx models.BusinessContext) string {
	return renderGreeting(bctx)
}

// Generate chooses a response category, renders the message text and emits
// follow-up actions. Generation failure never reaches the caller: a fixed
// low-confidence acknowledgement is returned instead, and its COMPLETED
// next-state terminates the conversation defensively.
func (g *Generator) Generate(conv *models.Conversation, analysis models.Analysis, bctx models.BusinessContext) (resp models.GeneratedResponse) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("response.Generate recovered from panic, returning fallback", "panic", r, "conversationID", conv.ID)
			resp = Fallback()
		}
	}()

	category := selectCategory(conv, analysis)
	text := g.render(category, conv, analysis, bctx)

	resp = models.GeneratedResponse{
		Text:            text,
		Category:        category,
		NextState:       conv.State,
		FollowUpActions: buildFollowUps(conv, analysis, category),
		Confidence:      responseConfidence(category, analysis),
		Reasoning:       reasoning(category, analysis),
	}
	slog.Debug("response.Generate completed", "conversationID", conv.ID, "category", category, "actions", len(resp.FollowUpActions))
	return resp
}

// Fallback is the fixed low-confidence response used when generation fails.
func Fallback() models.GeneratedResponse {
	return models.GeneratedResponse{
		Text:       fallbackAcknowledgement,
		Category:   models.ResponseCompletion,
		NextState:  models.StateCompleted,
		Confidence: fallbackConfidence,
		Reasoning:  "generation failed, terminating defensively",
	}
}

// selectCategory applies the precedence rules: emergency/critical beats
// everything, then readiness for callback, then the state map. A customer
// confirming while a visit is being arranged gets a confirmation instead of
// the scheduling prompt again.
func selectCategory(conv *models.Conversation, analysis models.Analysis) models.ResponseCategory {
	if flow.IsEmergency(analysis) {
		return models.ResponseAdvice
	}
	if analysis.ReadyForCallback {
		return models.ResponseCompletion
	}
	switch conv.State {
	case models.StateInitialResponse, models.StateAwaitingDescription,
		models.StateFollowUpQuestions, models.StateGatheringDetails:
		if analysis.Risk.Level.AtLeast(models.RiskHigh) {
			return models.ResponseAdvice
		}
		return models.ResponseQuestion
	case models.StateProvidingAdvice:
		return models.ResponseAdvice
	case models.StateSchedulingVisit:
		return models.ResponseScheduling
	case models.StateCompleted:
		// The state is already advanced here, so a visit confirmed at
		// scheduling arrives as a completed state with a confirmation intent.
		if last := lastCustomerUnderstanding(conv); last != nil && last.Intent == models.IntentConfirmation {
			return models.ResponseConfirmation
		}
		return models.ResponseCompletion
	default:
		return models.ResponseQuestion
	}
}

func (g *Generator) render(category models.ResponseCategory, conv *models.Conversation, analysis models.Analysis, bctx models.BusinessContext) string {
	switch category {
	case models.ResponseAdvice:
		if flow.IsEmergency(analysis) {
			return renderEmergencyAdvice(analysis, bctx)
		}
		if advice, ok := adviceTemplates[analysis.ProblemCategory]; ok {
			return advice
		}
		return adviceTemplates[models.ProblemUnknown]
	case models.ResponseCompletion:
		return renderCompletion(analysis, bctx)
	case models.ResponseScheduling:
		return schedulingRender(bctx)
	case models.ResponseConfirmation:
		return confirmationTemplate
	default:
		return g.nextQuestion(conv, analysis, bctx)
	}
}

// nextQuestion picks the highest-value missing detail: location, then
// symptoms, then duration, then safety, with fixed fallbacks for the very
// first exchange and for unintelligible messages.
func (g *Generator) nextQuestion(conv *models.Conversation, analysis models.Analysis, bctx models.BusinessContext) string {
	if conv.State == models.StateInitialResponse {
		return renderGreeting(bctx)
	}
	last := lastCustomerUnderstanding(conv)
	if last != nil && last.Intent == models.IntentClarification && len(last.Entities) == 0 {
		return fallbackQuestion
	}
	switch {
	case analysis.Location == "":
		return questionLocation
	case len(analysis.Symptoms) < 2:
		return questionSymptom
	case !hasDuration(conv):
		return questionDuration
	default:
		return questionSafety
	}
}

func lastCustomerUnderstanding(conv *models.Conversation) *models.UnderstandingResult {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Sender == models.SenderCustomer {
			return conv.Messages[i].Understanding
		}
	}
	return nil
}

func hasDuration(conv *models.Conversation) bool {
	for _, m := range conv.CustomerMessages() {
		if m.Understanding == nil {
			continue
		}
		for _, e := range m.Understanding.Entities {
			if e.Type == models.EntityDuration {
				return true
			}
		}
	}
	return false
}

func schedulingRender(bctx models.BusinessContext) string {
	hours := bctx.WorkingHours
	if hours == "" {
		hours = "9:00–18:00"
	}
	return sprintfScheduling(hours)
}

// buildFollowUps emits the side effects mandated for each outcome:
// completion and a confirmed visit schedule the callback reminder and a
// delayed summary; emergency urgency raises an immediate task; critical
// risk escalates.
func buildFollowUps(conv *models.Conversation, analysis models.Analysis, category models.ResponseCategory) []models.FollowUpAction {
	var actions []models.FollowUpAction

	if category == models.ResponseCompletion || category == models.ResponseConfirmation {
		delay := ReminderDelay(analysis)
		actions = append(actions, models.FollowUpAction{
			Type:  models.ActionSetReminder,
			Delay: delay,
			Payload: map[string]string{
				"conversation_id": conv.ID,
				"phone_number":    conv.PhoneNumber,
				"problem":         string(analysis.ProblemCategory),
			},
		})
		actions = append(actions, models.FollowUpAction{
			Type:  models.ActionSendSummary,
			Delay: delay,
			Payload: map[string]string{
				"conversation_id": conv.ID,
				"phone_number":    conv.PhoneNumber,
			},
		})
	}
	if analysis.Urgency == models.UrgencyEmergency {
		actions = append(actions, models.FollowUpAction{
			Type:  models.ActionCreateTask,
			Delay: 0,
			Payload: map[string]string{
				"conversation_id": conv.ID,
				"phone_number":    conv.PhoneNumber,
				"reason":          "emergency urgency",
			},
		})
	}
	if analysis.Risk.Level == models.RiskCritical {
		actions = append(actions, models.FollowUpAction{
			Type:  models.ActionEscalate,
			Delay: 0,
			Payload: map[string]string{
				"conversation_id": conv.ID,
				"phone_number":    conv.PhoneNumber,
				"reason":          "critical risk",
			},
		})
	}
	return actions
}

// ReminderDelay maps the combined urgency/risk tier to the callback
// reminder delay.
func ReminderDelay(analysis models.Analysis) time.Duration {
	if analysis.Urgency == models.UrgencyEmergency {
		return reminderEmergency
	}
	if analysis.Risk.Level == models.RiskCritical {
		return reminderCritical
	}
	switch analysis.Urgency {
	case models.UrgencyHigh:
		return reminderHigh
	case models.UrgencyMedium:
		return reminderMedium
	default:
		return reminderLow
	}
}

func responseConfidence(category models.ResponseCategory, analysis models.Analysis) float64 {
	if category == models.ResponseAdvice && flow.IsEmergency(analysis) {
		return 0.95
	}
	if analysis.Confidence < fallbackConfidence {
		return fallbackConfidence
	}
	return analysis.Confidence
}

func reasoning(category models.ResponseCategory, analysis models.Analysis) string {
	switch {
	case flow.IsEmergency(analysis):
		return "emergency shortcut: urgency " + string(analysis.Urgency) + ", risk " + string(analysis.Risk.Level)
	case analysis.ReadyForCallback:
		return "enough evidence gathered, concluding with callback"
	default:
		return "state-driven " + string(category) + " for " + string(analysis.ProblemCategory)
	}
}

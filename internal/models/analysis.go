// Package models defines analysis structures for the ServiceText triage
// pipeline: text-understanding output, the derived diagnosis and the
// follow-up actions emitted alongside generated responses.
package models

import "time"

// Intent is the coarse-grained purpose of a single customer message.
type Intent string

const (
	IntentGreeting           Intent = "greeting"
	IntentProblemDescription Intent = "problem_description"
	IntentQuestion           Intent = "question"
	IntentConfirmation       Intent = "confirmation"
	IntentSchedulingRequest  Intent = "scheduling_request"
	IntentComplaint          Intent = "complaint"
	// IntentClarification is the fallback when no keyword matches.
	IntentClarification Intent = "clarification"
	// IntentUnknown is returned when understanding fails internally.
	IntentUnknown Intent = "unknown"
)

// EntityType categorizes a structured fact extracted from free text.
type EntityType string

const (
	EntityProblemType   EntityType = "problem_type"
	EntityUrgencyLevel  EntityType = "urgency_level"
	EntityLocation      EntityType = "location"
	EntitySymptom       EntityType = "symptom"
	EntitySafetyConcern EntityType = "safety_concern"
	EntityDuration      EntityType = "duration"
)

// ExtractedEntity is append-only evidence attached to a customer message.
// The Analysis is recomputed from the full entity history, never patched.
type ExtractedEntity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
}

// SentimentPolarity is the overall tone of a message.
type SentimentPolarity string

const (
	SentimentPositive SentimentPolarity = "positive"
	SentimentNegative SentimentPolarity = "negative"
	SentimentNeutral  SentimentPolarity = "neutral"
)

// Emotion names a derived emotion score.
type Emotion string

const (
	EmotionUrgent     Emotion = "urgent"
	EmotionFrustrated Emotion = "frustrated"
	EmotionSatisfied  Emotion = "satisfied"
	EmotionWorried    Emotion = "worried"
)

// Sentiment is the word-count heuristic result for one message. Emotions
// holds only scores above the reporting threshold.
type Sentiment struct {
	Polarity   SentimentPolarity   `json:"polarity"`
	Confidence float64             `json:"confidence"`
	Emotions   map[Emotion]float64 `json:"emotions,omitempty"`
}

// UnderstandingResult is the full text-understanding output for one message.
type UnderstandingResult struct {
	Intent           Intent            `json:"intent"`
	IntentConfidence float64           `json:"intent_confidence"`
	Entities         []ExtractedEntity `json:"entities,omitempty"`
	Sentiment        Sentiment         `json:"sentiment"`
	Confidence       float64           `json:"confidence"`
}

// ProblemCategory classifies the customer's issue.
type ProblemCategory string

const (
	ProblemElectrical  ProblemCategory = "electrical"
	ProblemPlumbing    ProblemCategory = "plumbing"
	ProblemClimate     ProblemCategory = "climate"
	ProblemMaintenance ProblemCategory = "maintenance"
	ProblemUnknown     ProblemCategory = "unknown"
)

// UrgencyLevel is the four-tier urgency classification.
type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "low"
	UrgencyMedium    UrgencyLevel = "medium"
	UrgencyHigh      UrgencyLevel = "high"
	UrgencyEmergency UrgencyLevel = "emergency"
)

// RiskLevel is the four-tier safety classification driving escalation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskRank orders risk levels for comparisons.
var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtLeast reports whether r is at least as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[r] >= riskRank[other]
}

// RiskAssessment describes the safety dimension of a diagnosis.
// SafetyPrecautions is always non-empty; ImmediateActions only for medium+.
type RiskAssessment struct {
	Level             RiskLevel `json:"level"`
	Factors           []string  `json:"factors,omitempty"`
	ImmediateActions  []string  `json:"immediate_actions,omitempty"`
	SafetyPrecautions []string  `json:"safety_precautions"`
}

// CostEstimate is a per-category BGN range after complexity multipliers.
type CostEstimate struct {
	MinBGN   float64 `json:"min_bgn"`
	MaxBGN   float64 `json:"max_bgn"`
	Currency string  `json:"currency"`
}

// Analysis is the derived diagnosis, recomputed after every customer message
// from the full entity history. It must never carry state that cannot be
// reconstructed from the message list.
type Analysis struct {
	ProblemCategory  ProblemCategory `json:"problem_category"`
	Urgency          UrgencyLevel    `json:"urgency"`
	Risk             RiskAssessment  `json:"risk"`
	Cost             CostEstimate    `json:"cost"`
	RequiredTools    []string        `json:"required_tools,omitempty"`
	SafetyWarnings   []string        `json:"safety_warnings,omitempty"`
	Recommendations  []string        `json:"recommendations,omitempty"`
	NextSteps        []string        `json:"next_steps,omitempty"`
	Location         string          `json:"location,omitempty"`
	Symptoms         []string        `json:"symptoms,omitempty"`
	ReadyForCallback bool            `json:"ready_for_callback"`
	Confidence       float64         `json:"confidence"`
}

// FollowUpActionType enumerates the side effects a response can trigger.
type FollowUpActionType string

const (
	ActionSetReminder FollowUpActionType = "set_reminder"
	ActionCreateTask  FollowUpActionType = "create_task"
	ActionSendSummary FollowUpActionType = "send_summary"
	ActionEscalate    FollowUpActionType = "escalate"
)

// FollowUpAction is a fire-and-forget side effect produced by the response
// generator and consumed by the engine. It is not part of conversation state.
type FollowUpAction struct {
	Type    FollowUpActionType `json:"type"`
	Delay   time.Duration      `json:"delay"`
	Payload map[string]string  `json:"payload,omitempty"`
}

// ResponseCategory classifies a generated outbound message.
type ResponseCategory string

const (
	ResponseQuestion     ResponseCategory = "question"
	ResponseAdvice       ResponseCategory = "advice"
	ResponseConfirmation ResponseCategory = "confirmation"
	ResponseScheduling   ResponseCategory = "scheduling"
	ResponseCompletion   ResponseCategory = "completion"
)

// GeneratedResponse is the response generator output: the rendered message,
// the state to move to and any side-effecting follow-up actions.
type GeneratedResponse struct {
	Text            string            `json:"text"`
	Category        ResponseCategory  `json:"category"`
	NextState       ConversationState `json:"next_state"`
	FollowUpActions []FollowUpAction  `json:"follow_up_actions,omitempty"`
	Confidence      float64           `json:"confidence"`
	Reasoning       string            `json:"reasoning,omitempty"`
}

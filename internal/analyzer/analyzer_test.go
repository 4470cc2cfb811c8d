package analyzer

import (
	"math"
	"reflect"
	"testing"

	"github.com/dmirchev92/servicetext/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func customerMsg(text string, entities ...models.ExtractedEntity) models.Message {
	return models.Message{
		Sender: models.SenderCustomer,
		Kind:   models.MessageKindText,
		Text:   text,
		Understanding: &models.UnderstandingResult{
			Intent:   models.IntentProblemDescription,
			Entities: entities,
		},
	}
}

func entity(et models.EntityType, value string, conf float64) models.ExtractedEntity {
	return models.ExtractedEntity{Type: et, Value: value, Confidence: conf}
}

func conversation(messages ...models.Message) *models.Conversation {
	return &models.Conversation{ID: "conv_test", Messages: messages}
}

func TestAnalyzeIdempotent(t *testing.T) {
	a := NewAnalyzer()
	conv := conversation(
		customerMsg("токът в кухнята спря",
			entity(models.EntityProblemType, "електрически", 0.8),
			entity(models.EntityLocation, "кухня", 0.7),
			entity(models.EntitySymptom, "не работи", 0.8),
		),
	)

	first := a.Analyze(conv)
	second := a.Analyze(conv)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("analysis is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestAnalyzeCriticalSafetyEscalates(t *testing.T) {
	a := NewAnalyzer()
	conv := conversation(
		customerMsg("от контакта излизат искри",
			entity(models.EntityProblemType, "електрически", 0.8),
			entity(models.EntitySafetyConcern, "искри", 0.9),
		),
	)

	analysis := a.Analyze(conv)
	if analysis.Urgency != models.UrgencyEmergency {
		t.Errorf("expected emergency urgency, got %s", analysis.Urgency)
	}
	if analysis.Risk.Level != models.RiskCritical {
		t.Errorf("expected critical risk, got %s", analysis.Risk.Level)
	}
	if len(analysis.Risk.SafetyPrecautions) == 0 {
		t.Error("safety precautions must never be empty")
	}
	if len(analysis.Risk.ImmediateActions) == 0 {
		t.Error("expected immediate actions at critical risk")
	}
}

func TestAnalyzeExplicitUrgencyWins(t *testing.T) {
	a := NewAnalyzer()
	conv := conversation(
		customerMsg("когато можете, не е спешно",
			entity(models.EntityUrgencyLevel, "low", 0.9),
			entity(models.EntitySafetyConcern, "нагряване", 0.9),
		),
	)

	analysis := a.Analyze(conv)
	if analysis.Urgency != models.UrgencyLow {
		t.Errorf("explicit urgency entity should win, got %s", analysis.Urgency)
	}
	// Non-critical safety concern still raises risk to at least medium.
	if !analysis.Risk.Level.AtLeast(models.RiskMedium) {
		t.Errorf("expected at least medium risk, got %s", analysis.Risk.Level)
	}
}

func TestAnalyzeEmergencyUrgencyRaisesRisk(t *testing.T) {
	a := NewAnalyzer()
	conv := conversation(
		customerMsg("климатикът спря, спешно е",
			entity(models.EntityProblemType, "климатизация", 0.8),
			entity(models.EntityUrgencyLevel, "emergency", 0.9),
		),
	)

	analysis := a.Analyze(conv)
	if analysis.ProblemCategory != models.ProblemClimate {
		t.Errorf("expected climate category, got %s", analysis.ProblemCategory)
	}
	if analysis.Urgency != models.UrgencyEmergency {
		t.Errorf("expected emergency urgency, got %s", analysis.Urgency)
	}
	if !analysis.Risk.Level.AtLeast(models.RiskHigh) {
		t.Errorf("emergency urgency must raise risk to at least high, got %s", analysis.Risk.Level)
	}
}

func TestAnalyzeUrgentEmotionEscalates(t *testing.T) {
	a := NewAnalyzer()
	// No urgency, safety or duration entities; only the reported urgent
	// emotion carries the urgency signal.
	msg := customerMsg("много бързам с това")
	msg.Understanding.Sentiment = models.Sentiment{
		Polarity:   models.SentimentNeutral,
		Confidence: 0.5,
		Emotions:   map[models.Emotion]float64{models.EmotionUrgent: 0.8},
	}
	conv := conversation(msg)

	analysis := a.Analyze(conv)
	if analysis.Urgency != models.UrgencyHigh {
		t.Errorf("urgent emotion should escalate urgency to high, got %s", analysis.Urgency)
	}

	// At or below the reporting floor the emotion carries no signal.
	msg.Understanding.Sentiment.Emotions[models.EmotionUrgent] = 0.1
	analysis = a.Analyze(conversation(msg))
	if analysis.Urgency != models.UrgencyMedium {
		t.Errorf("floor-level urgent emotion should not escalate, got %s", analysis.Urgency)
	}
}

func TestAnalyzeCategoryFallbackScan(t *testing.T) {
	a := NewAnalyzer()
	// No problem-type entity; the ordered text scan decides. The text
	// mentions both electrical and plumbing words, electrical is scanned
	// first.
	conv := conversation(customerMsg("токът до бойлера спря"))

	analysis := a.Analyze(conv)
	if analysis.ProblemCategory != models.ProblemElectrical {
		t.Errorf("expected electrical from scan order, got %s", analysis.ProblemCategory)
	}
}

func TestAnalyzeReadinessGate(t *testing.T) {
	a := NewAnalyzer()

	base := []models.Message{
		customerMsg("токът спря",
			entity(models.EntityProblemType, "електрически", 0.8),
			entity(models.EntitySymptom, "не работи", 0.8),
		),
		customerMsg("в кухнята е, и мига лампата",
			entity(models.EntityLocation, "кухня", 0.7),
			entity(models.EntitySymptom, "мига", 0.8),
		),
	}

	conv := conversation(base...)
	analysis := a.Analyze(conv)
	if analysis.ReadyForCallback {
		t.Error("two customer messages must not be ready for callback")
	}

	conv = conversation(append(base, customerMsg("от днес е"))...)
	analysis = a.Analyze(conv)
	if !analysis.ReadyForCallback {
		t.Errorf("expected ready: location %q, symptoms %v", analysis.Location, analysis.Symptoms)
	}
}

func TestAnalyzeCostMultipliers(t *testing.T) {
	a := NewAnalyzer()

	// Safety concern: +0.3 on the electrical base 60-150.
	conv := conversation(
		customerMsg("искри от таблото",
			entity(models.EntityProblemType, "електрически", 0.8),
			entity(models.EntitySafetyConcern, "искри", 0.9),
		),
	)
	analysis := a.Analyze(conv)
	if !almostEqual(analysis.Cost.MinBGN, 78) || !almostEqual(analysis.Cost.MaxBGN, 195) {
		t.Errorf("expected cost 78-195, got %v-%v", analysis.Cost.MinBGN, analysis.Cost.MaxBGN)
	}
	if analysis.Cost.Currency != "BGN" {
		t.Errorf("expected BGN currency, got %s", analysis.Cost.Currency)
	}

	// More than three distinct symptoms: +0.2, no safety concern.
	conv = conversation(
		customerMsg("много неща не са наред",
			entity(models.EntityProblemType, "електрически", 0.8),
			entity(models.EntitySymptom, "не работи", 0.8),
			entity(models.EntitySymptom, "мига", 0.8),
			entity(models.EntitySymptom, "шум", 0.8),
			entity(models.EntitySymptom, "изключва", 0.8),
		),
	)
	analysis = a.Analyze(conv)
	if !almostEqual(analysis.Cost.MinBGN, 72) || !almostEqual(analysis.Cost.MaxBGN, 180) {
		t.Errorf("expected cost 72-180, got %v-%v", analysis.Cost.MinBGN, analysis.Cost.MaxBGN)
	}
}

func TestAnalyzeConfidenceFormula(t *testing.T) {
	a := NewAnalyzer()
	conv := conversation(
		customerMsg("токът спря", entity(models.EntityProblemType, "електрически", 0.8)),
	)

	analysis := a.Analyze(conv)
	// 0.5 + 0.3*0.8 + 0.2 (high-confidence problem type), one message so no
	// history bonus.
	if !almostEqual(analysis.Confidence, 0.94) {
		t.Errorf("expected confidence 0.94, got %v", analysis.Confidence)
	}
}

func TestAnalyzeEmptyConversation(t *testing.T) {
	a := NewAnalyzer()
	analysis := a.Analyze(conversation())

	if analysis.ProblemCategory != models.ProblemUnknown {
		t.Errorf("expected unknown category, got %s", analysis.ProblemCategory)
	}
	if analysis.Urgency != models.UrgencyMedium {
		t.Errorf("expected medium urgency default, got %s", analysis.Urgency)
	}
	if analysis.ReadyForCallback {
		t.Error("empty conversation must not be ready for callback")
	}
	if len(analysis.Risk.SafetyPrecautions) == 0 {
		t.Error("safety precautions must never be empty")
	}
}

func TestMinimalAnalysis(t *testing.T) {
	analysis := MinimalAnalysis()
	if analysis.ProblemCategory != models.ProblemUnknown {
		t.Errorf("expected unknown category, got %s", analysis.ProblemCategory)
	}
	if !almostEqual(analysis.Confidence, 0.1) {
		t.Errorf("expected floor confidence, got %v", analysis.Confidence)
	}
	if len(analysis.Risk.SafetyPrecautions) == 0 {
		t.Error("minimal analysis must still carry precautions")
	}
}

func TestDistinctSymptomsPreserveOrder(t *testing.T) {
	a := NewAnalyzer()
	conv := conversation(
		customerMsg("тече и капе",
			entity(models.EntityProblemType, "ВиК", 0.8),
			entity(models.EntitySymptom, "тече", 0.8),
			entity(models.EntitySymptom, "тече", 0.8),
			entity(models.EntitySymptom, "запушено", 0.8),
		),
	)

	analysis := a.Analyze(conv)
	want := []string{"тече", "запушено"}
	if !reflect.DeepEqual(analysis.Symptoms, want) {
		t.Errorf("expected symptoms %v, got %v", want, analysis.Symptoms)
	}
}

package nlp

import (
	"math"
	"testing"

	"github.com/dmirchev92/servicetext/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func hasEntity(entities []models.ExtractedEntity, et models.EntityType, value string) bool {
	for _, e := range entities {
		if e.Type == et && e.Value == value {
			return true
		}
	}
	return false
}

func TestProcessProblemWithGreeting(t *testing.T) {
	p := NewProcessor(nil)
	res := p.Process("Здравейте, имам проблем с контакта в кухнята.")

	// Greeting and problem keywords tie on score; the problem report wins.
	if res.Intent != models.IntentProblemDescription {
		t.Errorf("expected intent %s, got %s", models.IntentProblemDescription, res.Intent)
	}
	if !almostEqual(res.IntentConfidence, 0.7) {
		t.Errorf("expected intent confidence 0.7, got %v", res.IntentConfidence)
	}
	if !hasEntity(res.Entities, models.EntityProblemType, "електрически") {
		t.Errorf("expected electrical problem type entity, got %+v", res.Entities)
	}
	if !hasEntity(res.Entities, models.EntityLocation, "кухня") {
		t.Errorf("expected kitchen location entity, got %+v", res.Entities)
	}
	if res.Sentiment.Polarity != models.SentimentNegative {
		t.Errorf("expected negative sentiment, got %s", res.Sentiment.Polarity)
	}
}

func TestProcessIntentScoreCapped(t *testing.T) {
	p := NewProcessor(nil)
	res := p.Process("Имам проблем, печката спря и не работи.")

	if res.Intent != models.IntentProblemDescription {
		t.Fatalf("expected problem description, got %s", res.Intent)
	}
	// Three keyword matches would score 1.3 without the cap.
	if !almostEqual(res.IntentConfidence, 0.95) {
		t.Errorf("expected capped confidence 0.95, got %v", res.IntentConfidence)
	}
}

func TestProcessFallbackClarification(t *testing.T) {
	p := NewProcessor(nil)
	res := p.Process("ммм ххх ууу")

	if res.Intent != models.IntentClarification {
		t.Errorf("expected clarification fallback, got %s", res.Intent)
	}
	if !almostEqual(res.IntentConfidence, 0.1) {
		t.Errorf("expected fallback confidence 0.1, got %v", res.IntentConfidence)
	}
	if len(res.Entities) != 0 {
		t.Errorf("expected no entities, got %+v", res.Entities)
	}
	// 0.4*0.1 + 0.4*0.3 + 0.2*0.5 with no entities found.
	if !almostEqual(res.Confidence, 0.26) {
		t.Errorf("expected overall confidence 0.26, got %v", res.Confidence)
	}
}

func TestProcessSafetyConcern(t *testing.T) {
	p := NewProcessor(nil)
	res := p.Process("От контакта излизат искри!")

	if !hasEntity(res.Entities, models.EntitySafetyConcern, "искри") {
		t.Errorf("expected safety concern entity, got %+v", res.Entities)
	}
	if !hasEntity(res.Entities, models.EntitySymptom, "искри") {
		t.Errorf("expected symptom entity, got %+v", res.Entities)
	}
	for _, e := range res.Entities {
		if e.Type == models.EntitySafetyConcern && !almostEqual(e.Confidence, 0.9) {
			t.Errorf("expected safety confidence 0.9, got %v", e.Confidence)
		}
	}
}

func TestProcessDurationPatterns(t *testing.T) {
	p := NewProcessor(nil)

	res := p.Process("Тече от 2 часа под мивката")
	if !hasEntity(res.Entities, models.EntityDuration, "2 часа") {
		t.Errorf("expected duration entity '2 часа', got %+v", res.Entities)
	}

	res = p.Process("Ще съм вкъщи в 18:30")
	if !hasEntity(res.Entities, models.EntityDuration, "18:30") {
		t.Errorf("expected clock time entity '18:30', got %+v", res.Entities)
	}
}

func TestProcessSentimentAndEmotions(t *testing.T) {
	p := NewProcessor(nil)
	res := p.Process("Благодаря, чудесно обслужване!")

	if res.Sentiment.Polarity != models.SentimentPositive {
		t.Errorf("expected positive sentiment, got %s", res.Sentiment.Polarity)
	}
	if !almostEqual(res.Sentiment.Confidence, 0.9) {
		t.Errorf("expected sentiment confidence 0.9, got %v", res.Sentiment.Confidence)
	}
	score, ok := res.Sentiment.Emotions[models.EmotionSatisfied]
	if !ok {
		t.Fatalf("expected satisfied emotion, got %+v", res.Sentiment.Emotions)
	}
	if !almostEqual(score, 0.6) {
		t.Errorf("expected satisfied score 0.6, got %v", score)
	}
}

func TestProcessUrgentEmotion(t *testing.T) {
	p := NewProcessor(nil)
	res := p.Process("Спешно е, елате веднага!")

	score, ok := res.Sentiment.Emotions[models.EmotionUrgent]
	if !ok {
		t.Fatalf("expected urgent emotion, got %+v", res.Sentiment.Emotions)
	}
	if !almostEqual(score, 0.8) {
		t.Errorf("expected urgent score 0.8, got %v", score)
	}
	if !hasEntity(res.Entities, models.EntityUrgencyLevel, "emergency") {
		t.Errorf("expected emergency urgency entity, got %+v", res.Entities)
	}
}

func TestProcessUrgentListDrivesUrgentEmotion(t *testing.T) {
	// A lexicon that fills only the urgent word list, with no urgent
	// emotion rule, still reports the urgent emotion.
	lex := &Lexicon{
		Version: "test",
		Intents: []IntentRule{
			{Intent: models.IntentProblemDescription, Keywords: []string{"проблем"}},
		},
		ProblemTypes: []EntityRule{
			{Value: "електрически", Keywords: []string{"ток"}},
		},
		Urgent: []string{"горя", "паника"},
	}
	if err := lex.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	p := NewProcessor(lex)
	res := p.Process("Имам проблем, в паника съм!")

	score, ok := res.Sentiment.Emotions[models.EmotionUrgent]
	if !ok {
		t.Fatalf("expected urgent emotion from the urgent list, got %+v", res.Sentiment.Emotions)
	}
	if !almostEqual(score, 0.4) {
		t.Errorf("expected urgent score 0.4, got %v", score)
	}
}

func TestProcessDeterministic(t *testing.T) {
	p := NewProcessor(nil)
	text := "Здравейте, тече ми кранът в банята от 2 дни"
	first := p.Process(text)
	for i := 0; i < 5; i++ {
		again := p.Process(text)
		if again.Intent != first.Intent || !almostEqual(again.Confidence, first.Confidence) || len(again.Entities) != len(first.Entities) {
			t.Fatalf("processing is not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestDefaultResult(t *testing.T) {
	res := DefaultResult()
	if res.Intent != models.IntentUnknown {
		t.Errorf("expected unknown intent, got %s", res.Intent)
	}
	if !almostEqual(res.Confidence, 0.1) {
		t.Errorf("expected confidence 0.1, got %v", res.Confidence)
	}
	if res.Sentiment.Polarity != models.SentimentNeutral {
		t.Errorf("expected neutral sentiment, got %s", res.Sentiment.Polarity)
	}
}

func TestLexiconValidate(t *testing.T) {
	lex := DefaultLexicon()
	if err := lex.Validate(); err != nil {
		t.Errorf("default lexicon should validate, got %v", err)
	}

	empty := &Lexicon{}
	if err := empty.Validate(); err == nil {
		t.Error("empty lexicon should fail validation")
	}

	noKeywords := &Lexicon{
		Intents:      []IntentRule{{Intent: models.IntentGreeting}},
		ProblemTypes: []EntityRule{{Value: "x", Keywords: []string{"y"}}},
	}
	if err := noKeywords.Validate(); err == nil {
		t.Error("intent rule without keywords should fail validation")
	}
}

func TestIntentTieBreakOrder(t *testing.T) {
	p := NewProcessor(nil)
	// One keyword from each of two intents: declaration order decides.
	res := p.Process("здравейте, повреда")
	if res.Intent != models.IntentProblemDescription {
		t.Errorf("expected problem description to win the tie, got %s", res.Intent)
	}
}

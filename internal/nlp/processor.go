// Package nlp provides the Processor, a stateless keyword/pattern classifier.
package nlp

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/dmirchev92/servicetext/internal/models"
)

// Fixed per-category entity confidences.
const (
	confUrgency     = 0.9
	confSafety      = 0.9
	confProblemType = 0.8
	confSymptom     = 0.8
	confLocation    = 0.7
	confDuration    = 0.7
)

// Intent scoring constants: score = min(0.95, matches*0.3 + 0.4).
const (
	intentBaseScore     = 0.4
	intentMatchWeight   = 0.3
	intentScoreCap      = 0.95
	fallbackConfidence  = 0.1
	sentimentBase       = 0.5
	sentimentWeight     = 0.2
	sentimentCap        = 0.95
	emotionReportFloor  = 0.1
	urgentEmotionWeight = 0.4
	noEntityConfDefault = 0.3
	overallFloor        = 0.1
	overallCap          = 0.95
)

var (
	// Literal clock times like 18:30.
	clockTimeRe = regexp.MustCompile(`\b(?:[01]?[0-9]|2[0-3]):[0-5][0-9]\b`)
	// Bulgarian duration phrases like "от 2 часа" / "3 дни" / "една седмица".
	durationRe = regexp.MustCompile(`[0-9]+\s*(?:часове|часа|час|дни|ден|седмици|седмица)`)
)

// Processor is the text-understanding stage. It is a pure function of the
// input string plus a fixed lexicon; it holds no hidden state and is safe
// for concurrent use.
type Processor struct {
	lexicon *Lexicon
}

// NewProcessor creates a Processor. A nil lexicon selects the built-in
// Bulgarian tables.
func NewProcessor(lex *Lexicon) *Processor {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Processor{lexicon: lex}
}

// Lexicon exposes the active lexicon (read-only by convention).
func (p *Processor) Lexicon() *Lexicon {
	return p.lexicon
}

// Process maps one message's raw text to an intent, extracted entities and a
// sentiment score. It must never abort a conversation: any internal panic is
// recovered into the minimal default result.
func (p *Processor) Process(text string) (result models.UnderstandingResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("nlp.Process recovered from panic, returning default result", "panic", r)
			result = DefaultResult()
		}
	}()

	lowered := strings.ToLower(text)

	intent, intentConf := p.classifyIntent(lowered)
	entities := p.extractEntities(text, lowered)
	sentiment := p.scoreSentiment(lowered)

	result = models.UnderstandingResult{
		Intent:           intent,
		IntentConfidence: intentConf,
		Entities:         entities,
		Sentiment:        sentiment,
		Confidence:       overallConfidence(intentConf, entities, sentiment.Confidence),
	}
	slog.Debug("nlp.Process completed", "intent", intent, "entities", len(entities), "polarity", sentiment.Polarity, "confidence", result.Confidence)
	return result
}

// DefaultResult is the minimal understanding output used when processing
// fails internally.
func DefaultResult() models.UnderstandingResult {
	return models.UnderstandingResult{
		Intent:           models.IntentUnknown,
		IntentConfidence: fallbackConfidence,
		Sentiment:        models.Sentiment{Polarity: models.SentimentNeutral, Confidence: sentimentBase},
		Confidence:       fallbackConfidence,
	}
}

// classifyIntent scores every intent rule and returns the winner. Ties are
// resolved in favor of the earlier-declared intent; when nothing matches the
// fallback intent is clarification at confidence 0.1.
func (p *Processor) classifyIntent(lowered string) (models.Intent, float64) {
	best := models.IntentClarification
	bestScore := 0.0
	for _, rule := range p.lexicon.Intents {
		matches := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := min2(intentScoreCap, float64(matches)*intentMatchWeight+intentBaseScore)
		if score > bestScore {
			best = rule.Intent
			bestScore = score
		}
	}
	if bestScore == 0 {
		return models.IntentClarification, fallbackConfidence
	}
	return best, bestScore
}

// extractEntities runs the independent keyword passes plus the two pattern
// passes for clock times and durations. Duplicate hits are allowed here;
// deduplication happens when the analyzer folds entities into the Analysis.
func (p *Processor) extractEntities(text, lowered string) []models.ExtractedEntity {
	var entities []models.ExtractedEntity
	entities = append(entities, scanRules(lowered, p.lexicon.ProblemTypes, models.EntityProblemType, confProblemType)...)
	entities = append(entities, scanRules(lowered, p.lexicon.UrgencyLevels, models.EntityUrgencyLevel, confUrgency)...)
	entities = append(entities, scanRules(lowered, p.lexicon.Locations, models.EntityLocation, confLocation)...)
	entities = append(entities, scanRules(lowered, p.lexicon.Symptoms, models.EntitySymptom, confSymptom)...)
	entities = append(entities, scanRules(lowered, p.lexicon.SafetyConcerns, models.EntitySafetyConcern, confSafety)...)
	entities = append(entities, scanRules(lowered, p.lexicon.ImmediateTimes, models.EntityDuration, confDuration)...)

	for _, loc := range clockTimeRe.FindAllStringIndex(text, -1) {
		entities = append(entities, models.ExtractedEntity{
			Type:       models.EntityDuration,
			Value:      text[loc[0]:loc[1]],
			Confidence: confDuration,
			Start:      loc[0],
			End:        loc[1],
		})
	}
	for _, loc := range durationRe.FindAllStringIndex(lowered, -1) {
		entities = append(entities, models.ExtractedEntity{
			Type:       models.EntityDuration,
			Value:      lowered[loc[0]:loc[1]],
			Confidence: confDuration,
			Start:      loc[0],
			End:        loc[1],
		})
	}
	return entities
}

// scanRules emits one entity per keyword occurrence. Spans are byte offsets
// into the source text.
func scanRules(lowered string, rules []EntityRule, et models.EntityType, conf float64) []models.ExtractedEntity {
	var entities []models.ExtractedEntity
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			from := 0
			for {
				idx := strings.Index(lowered[from:], kw)
				if idx < 0 {
					break
				}
				start := from + idx
				entities = append(entities, models.ExtractedEntity{
					Type:       et,
					Value:      rule.Value,
					Confidence: conf,
					Start:      start,
					End:        start + len(kw),
				})
				from = start + len(kw)
			}
		}
	}
	return entities
}

// scoreSentiment applies the word-count heuristic over the three lexicons.
// Polarity goes to whichever of the positive/negative counts is strictly
// larger; confidence derives from the dominant count.
func (p *Processor) scoreSentiment(lowered string) models.Sentiment {
	pos := countMatches(lowered, p.lexicon.Positive)
	neg := countMatches(lowered, p.lexicon.Negative)

	polarity := models.SentimentNeutral
	dominant := pos
	switch {
	case pos > neg:
		polarity = models.SentimentPositive
	case neg > pos:
		polarity = models.SentimentNegative
		dominant = neg
	}

	sent := models.Sentiment{
		Polarity:   polarity,
		Confidence: min2(sentimentCap, sentimentBase+float64(dominant)*sentimentWeight),
	}

	for _, rule := range p.lexicon.Emotions {
		if rule.Emotion == models.EmotionUrgent {
			// The urgent emotion is always scored from the urgent word
			// list below, so the two sources cannot disagree.
			continue
		}
		n := countMatches(lowered, rule.Keywords)
		score := min2(1.0, float64(n)*rule.Weight)
		if score > emotionReportFloor {
			if sent.Emotions == nil {
				sent.Emotions = make(map[models.Emotion]float64)
			}
			sent.Emotions[rule.Emotion] = score
		}
	}

	if n := countMatches(lowered, p.lexicon.Urgent); n > 0 {
		score := min2(1.0, float64(n)*urgentEmotionWeight)
		if score > emotionReportFloor {
			if sent.Emotions == nil {
				sent.Emotions = make(map[models.Emotion]float64)
			}
			sent.Emotions[models.EmotionUrgent] = score
		}
	}
	return sent
}

func countMatches(lowered string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lowered, w) {
			n++
		}
	}
	return n
}

// overallConfidence is the weighted average of the three stage confidences:
// intent 0.4, mean entity confidence 0.4 (0.3 when no entities were found),
// sentiment 0.2, clamped to [0.1, 0.95].
func overallConfidence(intentConf float64, entities []models.ExtractedEntity, sentConf float64) float64 {
	entityConf := noEntityConfDefault
	if len(entities) > 0 {
		sum := 0.0
		for _, e := range entities {
			sum += e.Confidence
		}
		entityConf = sum / float64(len(entities))
	}
	v := 0.4*intentConf + 0.4*entityConf + 0.2*sentConf
	return clamp(v, overallFloor, overallCap)
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

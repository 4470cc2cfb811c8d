// Package analyzer implements the issue analyzer of the ServiceText triage
// engine. It folds every entity extracted so far into a structured diagnosis:
// problem category, urgency tier, risk level, cost estimate, required tools,
// safety warnings, next steps and the readiness-for-callback gate.
package analyzer

import (
	"log/slog"
	"strings"

	"github.com/dmirchev92/servicetext/internal/models"
)

// Analysis confidence formula constants.
const (
	confBase              = 0.5
	confEntityWeight      = 0.3
	confHistoryBonus      = 0.2
	confProblemTypeBonus  = 0.2
	confFloor             = 0.1
	confCap               = 0.95
	highConfidenceCutoff  = 0.7
	safetyCostMultiplier  = 0.3
	symptomCostMultiplier = 0.2
	manySymptomsCutoff    = 3
	readySymptomMinimum   = 2
	readyMessageMinimum   = 3
	urgentEmotionFloor    = 0.1
)

// Analyzer derives the diagnosis from accumulated conversation evidence.
// It is stateless: Analyze is idempotent over an unchanged conversation.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze folds all customer-message entities into one coherent Analysis.
// Analysis failure degrades gracefully: internal panics are recovered into a
// minimal low-confidence result, never raised to the caller.
func (a *Analyzer) Analyze(conv *models.Conversation) (analysis models.Analysis) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("analyzer.Analyze recovered from panic, returning minimal analysis", "panic", r, "conversationID", conv.ID)
			analysis = MinimalAnalysis()
		}
	}()

	customer := conv.CustomerMessages()
	entities := collectEntities(customer)

	category := classifyProblem(entities, customer)
	urgency := classifyUrgency(entities, customer)
	risk := assessRisk(category, urgency, entities)
	if urgency == models.UrgencyEmergency && !risk.Level.AtLeast(models.RiskHigh) {
		risk.Level = models.RiskHigh
	}

	symptoms := distinctValues(entities, models.EntitySymptom)
	location := firstValue(entities, models.EntityLocation)

	analysis = models.Analysis{
		ProblemCategory:  category,
		Urgency:          urgency,
		Risk:             risk,
		Cost:             estimateCost(category, entities, symptoms),
		RequiredTools:    cloneStrings(requiredTools[category]),
		SafetyWarnings:   cloneStrings(safetyWarnings[category]),
		Recommendations:  cloneStrings(recommendations[category]),
		NextSteps:        cloneStrings(nextSteps[category]),
		Location:         location,
		Symptoms:         symptoms,
		ReadyForCallback: location != "" && len(symptoms) >= readySymptomMinimum && len(customer) >= readyMessageMinimum,
		Confidence:       confidence(entities, customer),
	}
	slog.Debug("analyzer.Analyze completed", "conversationID", conv.ID,
		"category", category, "urgency", urgency, "risk", risk.Level,
		"ready", analysis.ReadyForCallback, "confidence", analysis.Confidence)
	return analysis
}

// MinimalAnalysis is the low-confidence fallback diagnosis.
func MinimalAnalysis() models.Analysis {
	return models.Analysis{
		ProblemCategory: models.ProblemUnknown,
		Urgency:         models.UrgencyMedium,
		Risk: models.RiskAssessment{
			Level:             models.RiskLow,
			SafetyPrecautions: cloneStrings(generalPrecautions),
		},
		Cost:       models.CostEstimate{MinBGN: costRanges[models.ProblemUnknown][0], MaxBGN: costRanges[models.ProblemUnknown][1], Currency: "BGN"},
		Confidence: confFloor,
	}
}

func collectEntities(customer []models.Message) []models.ExtractedEntity {
	var out []models.ExtractedEntity
	for _, m := range customer {
		if m.Understanding == nil {
			continue
		}
		out = append(out, m.Understanding.Entities...)
	}
	return out
}

// classifyProblem prefers an explicit high-confidence problem-type entity;
// otherwise it scans the concatenated customer text against the ordered
// category keyword groups, first match wins.
func classifyProblem(entities []models.ExtractedEntity, customer []models.Message) models.ProblemCategory {
	for _, e := range entities {
		if e.Type == models.EntityProblemType && e.Confidence > highConfidenceCutoff {
			if cat, ok := problemTypeCategories[e.Value]; ok {
				return cat
			}
		}
	}

	var sb strings.Builder
	for _, m := range customer {
		sb.WriteString(strings.ToLower(m.Text))
		sb.WriteByte(' ')
	}
	text := sb.String()
	for _, group := range categoryScan {
		for _, kw := range group.Keywords {
			if strings.Contains(text, kw) {
				return group.Category
			}
		}
	}
	return models.ProblemUnknown
}

// classifyUrgency: explicit high-confidence urgency entity wins; else any
// safety concern escalates (emergency when on the critical sub-list, high
// otherwise); else urgent emotion or an immediate time expression raises to
// high; default medium.
func classifyUrgency(entities []models.ExtractedEntity, customer []models.Message) models.UrgencyLevel {
	for _, e := range entities {
		if e.Type == models.EntityUrgencyLevel && e.Confidence > highConfidenceCutoff {
			if lvl, ok := urgencyEntityLevels[e.Value]; ok {
				return lvl
			}
			return models.UrgencyMedium
		}
	}

	hasSafety := false
	for _, e := range entities {
		if e.Type != models.EntitySafetyConcern {
			continue
		}
		if criticalSafetyValues[e.Value] {
			return models.UrgencyEmergency
		}
		hasSafety = true
	}
	if hasSafety {
		return models.UrgencyHigh
	}

	for _, m := range customer {
		if m.Understanding == nil {
			continue
		}
		if m.Understanding.Sentiment.Emotions[models.EmotionUrgent] > urgentEmotionFloor {
			return models.UrgencyHigh
		}
	}
	for _, e := range entities {
		if e.Type == models.EntityDuration && immediateTimeValues[e.Value] {
			return models.UrgencyHigh
		}
	}
	return models.UrgencyMedium
}

// assessRisk builds the risk assessment from the per-category profile.
// Critical safety entities force level critical regardless of the category
// default; precautions are always non-empty.
func assessRisk(category models.ProblemCategory, urgency models.UrgencyLevel, entities []models.ExtractedEntity) models.RiskAssessment {
	profile, ok := riskProfiles[category]
	if !ok {
		profile = riskProfiles[models.ProblemUnknown]
	}

	risk := models.RiskAssessment{
		Level:             profile.Level,
		Factors:           cloneStrings(profile.Factors),
		ImmediateActions:  cloneStrings(profile.ImmediateActions),
		SafetyPrecautions: cloneStrings(profile.SafetyPrecautions),
	}

	seen := make(map[string]bool)
	for _, e := range entities {
		if e.Type != models.EntitySafetyConcern || seen[e.Value] {
			continue
		}
		seen[e.Value] = true
		risk.Factors = append(risk.Factors, "сигнал за опасност: "+e.Value)
		if criticalSafetyValues[e.Value] {
			risk.Level = models.RiskCritical
		} else if !risk.Level.AtLeast(models.RiskMedium) {
			risk.Level = models.RiskMedium
		}
	}

	if urgency == models.UrgencyEmergency && !risk.Level.AtLeast(models.RiskHigh) {
		risk.Level = models.RiskHigh
	}

	// Immediate actions apply from medium risk upward.
	if !risk.Level.AtLeast(models.RiskMedium) {
		risk.ImmediateActions = nil
	}
	risk.SafetyPrecautions = append(risk.SafetyPrecautions, generalPrecautions...)
	return risk
}

// estimateCost applies the complexity multiplier (+0.3 with any safety
// issue, +0.2 with more than 3 distinct symptoms) to the per-category base
// BGN range.
func estimateCost(category models.ProblemCategory, entities []models.ExtractedEntity, symptoms []string) models.CostEstimate {
	base, ok := costRanges[category]
	if !ok {
		base = costRanges[models.ProblemUnknown]
	}
	multiplier := 1.0
	for _, e := range entities {
		if e.Type == models.EntitySafetyConcern {
			multiplier += safetyCostMultiplier
			break
		}
	}
	if len(symptoms) > manySymptomsCutoff {
		multiplier += symptomCostMultiplier
	}
	return models.CostEstimate{
		MinBGN:   base[0] * multiplier,
		MaxBGN:   base[1] * multiplier,
		Currency: "BGN",
	}
}

func confidence(entities []models.ExtractedEntity, customer []models.Message) float64 {
	entityMean := 0.0
	if len(entities) > 0 {
		sum := 0.0
		for _, e := range entities {
			sum += e.Confidence
		}
		entityMean = sum / float64(len(entities))
	}
	v := confBase + confEntityWeight*entityMean
	if len(customer) >= readyMessageMinimum {
		v += confHistoryBonus
	}
	for _, e := range entities {
		if e.Type == models.EntityProblemType && e.Confidence > highConfidenceCutoff {
			v += confProblemTypeBonus
			break
		}
	}
	if v < confFloor {
		v = confFloor
	}
	if v > confCap {
		v = confCap
	}
	return v
}

// distinctValues returns the distinct entity values of one type, preserving
// first-occurrence order.
func distinctValues(entities []models.ExtractedEntity, et models.EntityType) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entities {
		if e.Type != et || seen[e.Value] {
			continue
		}
		seen[e.Value] = true
		out = append(out, e.Value)
	}
	return out
}

func firstValue(entities []models.ExtractedEntity, et models.EntityType) string {
	for _, e := range entities {
		if e.Type == et {
			return e.Value
		}
	}
	return ""
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Package analyzer diagnosis tables. Category scan order and table contents
// are behavioral contracts: the first matching keyword group wins, so the
// declaration order below must not be reshuffled.
package analyzer

import "github.com/dmirchev92/servicetext/internal/models"

// problemTypeCategories maps canonical problem-type entity values (as
// produced by the nlp lexicon) to problem categories.
var problemTypeCategories = map[string]models.ProblemCategory{
	"електрически": models.ProblemElectrical,
	"ВиК":          models.ProblemPlumbing,
	"климатизация": models.ProblemClimate,
	"поддръжка":    models.ProblemMaintenance,
}

// categoryScanGroup is one ordered fallback keyword group for classifying
// concatenated customer text when no high-confidence entity exists.
type categoryScanGroup struct {
	Category models.ProblemCategory
	Keywords []string
}

// categoryScan is evaluated electrical → plumbing → climate → maintenance;
// first match wins.
var categoryScan = []categoryScanGroup{
	{models.ProblemElectrical, []string{"ток", "контакт", "лампа", "осветление", "табло", "бушон", "кабел", "електрическ"}},
	{models.ProblemPlumbing, []string{"вода", "тече", "теч", "кран", "тръба", "чешма", "бойлер", "канал", "мивка"}},
	{models.ProblemClimate, []string{"климатик", "парно", "отопление", "радиатор", "вентилация"}},
	{models.ProblemMaintenance, []string{"ремонт", "врата", "прозорец", "ключалка", "монтаж", "боядисване"}},
}

// criticalSafetyValues is the sub-list of safety-concern entity values that
// force emergency urgency and critical risk.
var criticalSafetyValues = map[string]bool{
	"искри":               true,
	"мирише на изгоряло":  true,
	"токов удар":          true,
	"наводнение":          true,
	"дим":                 true,
}

// immediateTimeValues are duration entity values that indicate the problem
// is happening right now.
var immediateTimeValues = map[string]bool{
	"сега":    true,
	"веднага": true,
	"днес":    true,
}

// urgencyEntityLevels maps canonical urgency entity values to levels.
var urgencyEntityLevels = map[string]models.UrgencyLevel{
	"emergency": models.UrgencyEmergency,
	"high":      models.UrgencyHigh,
	"low":       models.UrgencyLow,
}

// riskProfile is the per-category baseline risk assessment.
type riskProfile struct {
	Level             models.RiskLevel
	Factors           []string
	ImmediateActions  []string
	SafetyPrecautions []string
}

var riskProfiles = map[models.ProblemCategory]riskProfile{
	models.ProblemElectrical: {
		Level:   models.RiskMedium,
		Factors: []string{"работа по електрическа инсталация"},
		ImmediateActions: []string{
			"Изключете предпазителя на засегнатия токов кръг",
		},
		SafetyPrecautions: []string{
			"Не докосвайте оголени проводници",
			"Не използвайте уреда до идването на техник",
		},
	},
	models.ProblemPlumbing: {
		Level:   models.RiskMedium,
		Factors: []string{"риск от щети от вода"},
		ImmediateActions: []string{
			"Спрете водата от централния кран",
		},
		SafetyPrecautions: []string{
			"Подложете съд под теча",
			"Преместете електроуредите далеч от водата",
		},
	},
	models.ProblemClimate: {
		Level: models.RiskLow,
		SafetyPrecautions: []string{
			"Не отваряйте корпуса на уреда",
		},
	},
	models.ProblemMaintenance: {
		Level: models.RiskLow,
		SafetyPrecautions: []string{
			"Обезопасете работната зона",
		},
	},
	models.ProblemUnknown: {
		Level: models.RiskLow,
		SafetyPrecautions: []string{
			"При съмнение за опасност се отдалечете от уреда",
		},
	},
}

// costRanges are per-category base estimates in BGN before multipliers.
var costRanges = map[models.ProblemCategory][2]float64{
	models.ProblemElectrical:  {60, 150},
	models.ProblemPlumbing:    {50, 140},
	models.ProblemClimate:     {80, 200},
	models.ProblemMaintenance: {40, 120},
	models.ProblemUnknown:     {50, 100},
}

var requiredTools = map[models.ProblemCategory][]string{
	models.ProblemElectrical:  {"фазомер", "изолирани отвертки", "мултицет"},
	models.ProblemPlumbing:    {"тръбен ключ", "тефлонова лента", "поп за отпушване"},
	models.ProblemClimate:     {"манометри", "термометър", "почистващи препарати"},
	models.ProblemMaintenance: {"комплект инструменти", "нивелир"},
	models.ProblemUnknown:     {"комплект инструменти"},
}

var recommendations = map[models.ProblemCategory][]string{
	models.ProblemElectrical: {
		"Огледът от електротехник е задължителен преди повторно включване",
	},
	models.ProblemPlumbing: {
		"Проверете дали течът не е повредил съседни помещения",
	},
	models.ProblemClimate: {
		"Редовното профилактично почистване удължава живота на уреда",
	},
	models.ProblemMaintenance: {
		"Опишете точните размери/модел преди посещението",
	},
	models.ProblemUnknown: {
		"Опишете проблема възможно най-подробно",
	},
}

var safetyWarnings = map[models.ProblemCategory][]string{
	models.ProblemElectrical: {
		"Работата по ел. инсталация без изключено захранване е животозастрашаваща",
	},
	models.ProblemPlumbing: {
		"Вода в близост до контакти създава риск от токов удар",
	},
	models.ProblemClimate:     nil,
	models.ProblemMaintenance: nil,
	models.ProblemUnknown:     nil,
}

var nextSteps = map[models.ProblemCategory][]string{
	models.ProblemElectrical: {
		"Техникът ще замери инсталацията и ще локализира повредата",
	},
	models.ProblemPlumbing: {
		"Техникът ще установи източника на теча и ще подмени засегнатия участък",
	},
	models.ProblemClimate: {
		"Техникът ще диагностицира уреда на място",
	},
	models.ProblemMaintenance: {
		"Техникът ще огледа и ще даде оферта на място",
	},
	models.ProblemUnknown: {
		"Техникът ще уточни проблема при огледа",
	},
}

// generalPrecautions are appended so precautions stay non-empty even at low
// risk.
var generalPrecautions = []string{
	"При непосредствена опасност звъннете на 112",
}

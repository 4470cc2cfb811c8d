// Package nlp implements the deterministic text-understanding stage of the
// ServiceText triage engine: keyword-based intent classification, entity
// extraction and sentiment scoring over Bulgarian customer messages.
package nlp

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmirchev92/servicetext/internal/models"
)

// IntentRule associates an intent with its keyword set. Rules are evaluated
// in declaration order; on a score tie the earlier-declared intent wins, so
// the order of the Intents slice is a behavioral contract.
type IntentRule struct {
	Intent   models.Intent `json:"intent"`
	Keywords []string      `json:"keywords"`
}

// EntityRule maps a keyword group to a canonical entity value. Rule order
// within a category is preserved for deterministic first-match semantics.
type EntityRule struct {
	Value    string   `json:"value"`
	Keywords []string `json:"keywords"`
}

// EmotionRule scores an emotion from keyword counts: min(1.0, count*weight).
// The urgent emotion is scored from the Urgent word list instead, so rules
// for it are ignored.
type EmotionRule struct {
	Emotion  models.Emotion `json:"emotion"`
	Keywords []string       `json:"keywords"`
	Weight   float64        `json:"weight"`
}

// Lexicon is the full keyword configuration of the understanding stage.
// It is data, not logic: the Bulgarian tables below can be swapped or
// extended (see LoadLexicon) without touching the matching algorithm.
type Lexicon struct {
	Version        string       `json:"version"`
	Intents        []IntentRule `json:"intents"`
	ProblemTypes   []EntityRule `json:"problem_types"`
	UrgencyLevels  []EntityRule `json:"urgency_levels"`
	Locations      []EntityRule `json:"locations"`
	Symptoms       []EntityRule `json:"symptoms"`
	SafetyConcerns []EntityRule `json:"safety_concerns"`
	ImmediateTimes []EntityRule `json:"immediate_times"`
	Positive       []string     `json:"positive"`
	Negative       []string     `json:"negative"`
	Urgent         []string     `json:"urgent"`
	Emotions       []EmotionRule `json:"emotions"`
}

// Validate checks that the lexicon has the minimum content required to
// classify messages.
func (l *Lexicon) Validate() error {
	if len(l.Intents) == 0 {
		return fmt.Errorf("lexicon has no intent rules")
	}
	if len(l.ProblemTypes) == 0 {
		return fmt.Errorf("lexicon has no problem type rules")
	}
	for _, r := range l.Intents {
		if len(r.Keywords) == 0 {
			return fmt.Errorf("intent %q has no keywords", r.Intent)
		}
	}
	return nil
}

// LoadLexicon reads a lexicon from a JSON file.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	var lex Lexicon
	if err := json.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file %s: %w", path, err)
	}
	if err := lex.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lexicon in %s: %w", path, err)
	}
	return &lex, nil
}

// DefaultLexicon returns the built-in Bulgarian lexicon.
//
// problem_description is declared before greeting so that a message opening
// with a greeting but describing a problem classifies as a problem report.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Version: "bg-1",
		Intents: []IntentRule{
			{Intent: models.IntentProblemDescription, Keywords: []string{
				"проблем", "повреда", "не работи", "счупи", "спря", "тече",
				"гърми", "искри", "авария", "развали",
			}},
			{Intent: models.IntentSchedulingRequest, Keywords: []string{
				"запазя час", "посещение", "елате", "кога можете", "да дойдете",
				"удобно ли е",
			}},
			{Intent: models.IntentQuestion, Keywords: []string{
				"как", "кога", "колко", "защо", "може ли", "какво",
			}},
			{Intent: models.IntentConfirmation, Keywords: []string{
				"да, добре", "разбрах", "благодаря", "става", "точно така",
				"съгласен",
			}},
			{Intent: models.IntentComplaint, Keywords: []string{
				"недоволен", "оплакване", "ужасно обслужване", "много бавно",
			}},
			{Intent: models.IntentGreeting, Keywords: []string{
				"здравейте", "добър ден", "добро утро", "добър вечер", "привет",
				"здрасти",
			}},
		},
		ProblemTypes: []EntityRule{
			{Value: "електрически", Keywords: []string{
				"ток", "контакт", "ключ на лампа", "осветление", "лампа",
				"табло", "бушон", "прекъсвач", "електрически", "жица", "кабел",
			}},
			{Value: "ВиК", Keywords: []string{
				"вода", "тече", "теч", "кран", "чешма", "тръба", "канал",
				"сифон", "бойлер", "тоалетна", "мивка",
			}},
			{Value: "климатизация", Keywords: []string{
				"климатик", "парно", "отопление", "радиатор", "вентилация",
				"не топли", "не охлажда",
			}},
			{Value: "поддръжка", Keywords: []string{
				"ремонт", "боядисване", "врата", "прозорец", "ключалка",
				"мебел", "монтаж",
			}},
		},
		UrgencyLevels: []EntityRule{
			{Value: "emergency", Keywords: []string{
				"спешно", "веднага", "незабавно", "авария", "много опасно",
			}},
			{Value: "high", Keywords: []string{
				"бързо", "час по-скоро", "още днес", "не търпи отлагане",
			}},
			{Value: "low", Keywords: []string{
				"когато можете", "не е спешно", "няма спешност", "не бърза",
			}},
		},
		Locations: []EntityRule{
			{Value: "кухня", Keywords: []string{"кухня", "кухнята"}},
			{Value: "баня", Keywords: []string{"баня", "банята", "тоалетната"}},
			{Value: "хол", Keywords: []string{"хол", "хола", "всекидневна"}},
			{Value: "спалня", Keywords: []string{"спалня", "спалнята"}},
			{Value: "коридор", Keywords: []string{"коридор", "антре"}},
			{Value: "балкон", Keywords: []string{"балкон", "тераса"}},
			{Value: "мазе", Keywords: []string{"мазе", "сутерен"}},
			{Value: "таван", Keywords: []string{"таван", "тавана"}},
			{Value: "двор", Keywords: []string{"двор", "градина", "гараж"}},
		},
		Symptoms: []EntityRule{
			{Value: "не работи", Keywords: []string{"не работи", "спря", "не пали", "не се включва"}},
			{Value: "тече", Keywords: []string{"тече", "капе", "протича"}},
			{Value: "искри", Keywords: []string{"искри", "хвърля искри"}},
			{Value: "мирише", Keywords: []string{"мирише", "смърди", "воня"}},
			{Value: "шум", Keywords: []string{"шум", "гърми", "бучи", "трака"}},
			{Value: "прегрява", Keywords: []string{"прегрява", "нагрява се", "пари"}},
			{Value: "изключва", Keywords: []string{"изключва", "гасне", "бие шалтера"}},
			{Value: "мига", Keywords: []string{"мига", "премигва"}},
			{Value: "запушено", Keywords: []string{"запушен", "запушена", "не източва"}},
			{Value: "студена вода", Keywords: []string{"студена вода", "няма топла вода"}},
		},
		SafetyConcerns: []EntityRule{
			{Value: "искри", Keywords: []string{"искри", "хвърля искри"}},
			{Value: "мирише на изгоряло", Keywords: []string{"мирише на изгоряло", "изгоряло", "пърлено"}},
			{Value: "токов удар", Keywords: []string{"токов удар", "удари ме ток", "тресе"}},
			{Value: "наводнение", Keywords: []string{"наводнение", "наводни", "залива"}},
			{Value: "дим", Keywords: []string{"дим", "пушек", "пуши"}},
			{Value: "оголени кабели", Keywords: []string{"оголен кабел", "оголени жици"}},
			{Value: "нагряване", Keywords: []string{"нагрява се контактът", "топъл контакт"}},
		},
		ImmediateTimes: []EntityRule{
			{Value: "сега", Keywords: []string{"сега", "в момента"}},
			{Value: "веднага", Keywords: []string{"веднага", "незабавно"}},
			{Value: "днес", Keywords: []string{"днес", "довечера"}},
		},
		Positive: []string{
			"благодаря", "чудесно", "супер", "отлично", "добре", "доволен",
			"перфектно", "браво",
		},
		Negative: []string{
			"лошо", "ужасно", "зле", "проблем", "повреда", "счупено",
			"недоволен", "кошмар", "отвратително",
		},
		Urgent: []string{
			"спешно", "веднага", "незабавно", "бързо", "сега", "авария",
		},
		Emotions: []EmotionRule{
			{Emotion: models.EmotionFrustrated, Weight: 0.3, Keywords: []string{
				"ядосан", "писна ми", "омръзна", "недоволен", "ужасно", "кошмар",
			}},
			{Emotion: models.EmotionSatisfied, Weight: 0.3, Keywords: []string{
				"благодаря", "доволен", "чудесно", "супер", "отлично",
			}},
			{Emotion: models.EmotionWorried, Weight: 0.3, Keywords: []string{
				"притеснен", "притеснявам", "страх", "опасно", "тревожа",
			}},
		},
	}
}

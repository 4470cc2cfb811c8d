// Package response Bulgarian message templates. Texts are data: they are
// keyed by response category and problem category so the wording can change
// without touching selection logic.
package response

import (
	"fmt"
	"strings"

	"github.com/dmirchev92/servicetext/internal/models"
)

// greetingTemplate opens every conversation; it stands in for the missed
// call itself.
const greetingTemplate = "Здравейте! Свързахте се с %s, %s. В момента не мога да вдигна телефона. Опишете ми накратко какъв е проблемът и ще ви съдействам веднага."

const afterHoursSuffix = " Извън работно време съм (%s), но при спешност ще реагирам."

// fallbackQuestion is asked when nothing in the message was recognized.
const fallbackQuestion = "Не успях да ви разбера напълно. Може ли да опишете проблема с няколко думи — какво не работи и къде се намира?"

// fallbackAcknowledgement is the fixed low-confidence response used when
// generation fails internally.
const fallbackAcknowledgement = "Благодаря за информацията! Записах си всичко и ще ви се обадя възможно най-скоро."

// Detail questions asked while gathering, in priority order.
const (
	questionLocation = "В кое помещение е проблемът — кухня, баня, или другаде?"
	questionSymptom  = "Какво точно се случва? Опишете ми симптомите — не работи, тече, мирише, шуми?"
	questionDuration = "От кога е този проблем — от днес или от по-отдавна?"
	questionSafety   = "Забелязвате ли нещо опасно — искри, дим или миризма на изгоряло?"
)

// adviceTemplates give problem-specific guidance while a visit is arranged.
var adviceTemplates = map[models.ProblemCategory]string{
	models.ProblemElectrical:  "Важно: изключете предпазителя на засегнатия кръг и не ползвайте уреда. Ще дойда за оглед възможно най-бързо.",
	models.ProblemPlumbing:    "Важно: спрете водата от централния кран и подложете съд под теча. Ще дойда за оглед възможно най-бързо.",
	models.ProblemClimate:     "Изключете уреда от копчето и не отваряйте корпуса. Ще дойда за оглед възможно най-бързо.",
	models.ProblemMaintenance: "Обезопасете зоната и не предприемайте нищо сами. Ще дойда за оглед възможно най-бързо.",
	models.ProblemUnknown:     "Не предприемайте нищо сами до огледа. Ще дойда възможно най-бързо.",
}

const emergencyAdviceTemplate = "СПЕШНО: %s При непосредствена опасност звъннете на 112. Свържете се и с дежурния ни номер %s — идвам веднага."

const schedulingTemplate = "Мога да дойда на оглед. Кога ви е удобно — днес следобед или утре сутринта? Работно време: %s."

const confirmationTemplate = "Записах си. Ще потвърдя точния час с последващо съобщение."

// completionETA commits to a callback window keyed by urgency tier.
var completionETA = map[models.UrgencyLevel]string{
	models.UrgencyEmergency: "до 30 минути",
	models.UrgencyHigh:      "до 2 часа",
	models.UrgencyMedium:    "днес до края на деня",
	models.UrgencyLow:       "до 2 работни дни",
}

// problemCategoryLabels render categories in customer-facing Bulgarian.
var problemCategoryLabels = map[models.ProblemCategory]string{
	models.ProblemElectrical:  "електрически проблем",
	models.ProblemPlumbing:    "ВиК проблем",
	models.ProblemClimate:     "проблем с отопление/климатизация",
	models.ProblemMaintenance: "ремонт и поддръжка",
	models.ProblemUnknown:     "технически проблем",
}

// renderCompletion builds the structured closing summary: category,
// location, symptoms, cost estimate and the callback commitment.
func renderCompletion(analysis models.Analysis, bctx models.BusinessContext) string {
	var sb strings.Builder
	sb.WriteString("Благодаря! Ето какво си записах:\n")
	fmt.Fprintf(&sb, "• Проблем: %s\n", problemCategoryLabels[analysis.ProblemCategory])
	if analysis.Location != "" {
		fmt.Fprintf(&sb, "• Помещение: %s\n", analysis.Location)
	}
	if len(analysis.Symptoms) > 0 {
		fmt.Fprintf(&sb, "• Симптоми: %s\n", strings.Join(analysis.Symptoms, ", "))
	}
	fmt.Fprintf(&sb, "• Ориентировъчна цена: между %.0f и %.0f лв.\n", analysis.Cost.MinBGN, analysis.Cost.MaxBGN)
	fmt.Fprintf(&sb, "%s ще ви се обади %s за точен час.", bctx.AgentName, completionETA[analysis.Urgency])
	return sb.String()
}

func sprintfScheduling(hours string) string {
	return fmt.Sprintf(schedulingTemplate, hours)
}

// renderGreeting builds the opening message from the business context.
func renderGreeting(bctx models.BusinessContext) string {
	text := fmt.Sprintf(greetingTemplate, bctx.AgentName, bctx.Profession)
	if !bctx.IsBusinessHours && bctx.WorkingHours != "" {
		text += fmt.Sprintf(afterHoursSuffix, bctx.WorkingHours)
	}
	return text
}

// renderEmergencyAdvice prepends the category advice with the escalation
// framing and the emergency contact.
func renderEmergencyAdvice(analysis models.Analysis, bctx models.BusinessContext) string {
	advice := adviceTemplates[analysis.ProblemCategory]
	if advice == "" {
		advice = adviceTemplates[models.ProblemUnknown]
	}
	contact := bctx.EmergencyContact
	if contact == "" {
		contact = bctx.AgentName
	}
	return fmt.Sprintf(emergencyAdviceTemplate, advice, contact)
}

package triage

import (
	"strings"

	"github.com/dwizi/wa-assistant/internal/textnorm"
)

type Intent string

const (
	IntentUrgency  Intent = "urgency"
	IntentMeeting  Intent = "meeting"
	IntentSupport  Intent = "support"
	IntentSales    Intent = "sales"
	IntentPersonal Intent = "personal"
	IntentGeneral  Intent = "general"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type Classification struct {
	Intent   Intent
	Priority Priority
	Reason   string
}

type intentRule struct {
	intent   Intent
	reason   string
	keywords []string
}

// Rules are evaluated in order; the first match wins.
var intentRules = []intentRule{
	{intent: IntentUrgency, reason: "urgency keywords", keywords: []string{"urgente", "urgencia", "emergencia", "critico"}},
	{intent: IntentMeeting, reason: "meeting keywords", keywords: []string{"reunion", "meeting", "agendar", "agenda", "llamada", "cita", "calendario"}},
	{intent: IntentSupport, reason: "support keywords", keywords: []string{"error", "bug", "falla", "no funciona", "problema", "soporte"}},
	{intent: IntentSales, reason: "sales keywords", keywords: []string{"precio", "cotizacion", "demo", "propuesta", "venta", "comprar"}},
	{intent: IntentPersonal, reason: "personal keywords", keywords: []string{"familia", "personal", "amigo", "hola lucas"}},
}

var immediacyKeywords = []string{"hoy", "ahora", "asap", "urgente", "inmediato"}

func Classify(text string) Classification {
	intent, reason := classifyIntent(textnorm.Fold(text))
	return Classification{
		Intent:   intent,
		Priority: ClassifyPriority(intent, text),
		Reason:   reason,
	}
}

func ClassifyIntent(text string) Intent {
	intent, _ := classifyIntent(textnorm.Fold(text))
	return intent
}

func classifyIntent(folded string) (Intent, string) {
	for _, rule := range intentRules {
		if textnorm.ContainsAny(folded, rule.keywords) {
			return rule.intent, rule.reason
		}
	}
	return IntentGeneral, "no routing intent"
}

func ClassifyPriority(intent Intent, text string) Priority {
	switch intent {
	case IntentUrgency:
		return PriorityCritical
	case IntentMeeting, IntentSales, IntentSupport:
		if textnorm.ContainsAny(textnorm.Fold(text), immediacyKeywords) {
			return PriorityHigh
		}
		return PriorityNormal
	case IntentPersonal:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critical", "p0":
		return PriorityCritical, true
	case "high", "p1", "urgent":
		return PriorityHigh, true
	case "normal", "medium", "p2":
		return PriorityNormal, true
	case "low", "p3":
		return PriorityLow, true
	default:
		return "", false
	}
}

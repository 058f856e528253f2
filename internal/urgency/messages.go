package urgency

import (
	"fmt"
	"strings"
)

const (
	msgEmptyDetail    = "Necesito un poco más de detalle para continuar."
	msgEditDetail     = "Perfecto, envíame el detalle corregido."
	msgRewriteDetail  = "Listo, reescribe el detalle para continuar."
	msgCancelled      = "Perfecto, cerré este protocolo de urgencia. Si necesitas, escribe 'urgencia' para iniciar otro."
	msgEventConfigNok = "No entendí. Responde 1 para inicio/fin o 2 para todo el día."
	msgEventConfig    = "¿Cómo quieres configurar el evento?\n" +
		"1) Inicio y término (60 min)\n" +
		"2) Todo el día\n" +
		"Puedes escribir 'volver' para corregir detalle."
)

func menuText(agentName, userName string) string {
	return fmt.Sprintf("Hola, soy %s, asistente de %s. Veo que marcaste una urgencia.\n\n", agentName, userName) +
		"Para ayudarte mejor, responde con un número:\n" +
		"1) Evento (calendario)\n" +
		fmt.Sprintf("2) Nota (que quede registrada para %s)\n", userName) +
		"3) Recordatorio con hora\n" +
		fmt.Sprintf("4) Urgencia inmediata (avisarle a %s ahora)\n\n", userName) +
		"Puedes responder 'cancelar' para salir del protocolo."
}

func promptForKind(kind Kind, userName string) string {
	switch kind {
	case KindEvento:
		return "Ok, evento. Escríbeme en un solo mensaje: título, fecha y hora.\n" +
			"Ejemplo: Reunion banco, lunes 10:30\n" +
			"Si quieres retroceder escribe 'volver'."
	case KindNota:
		return fmt.Sprintf("Ok, nota. Escríbeme el texto que quieres que %s tenga presente.", userName)
	case KindRecordatorio:
		return "Ok, recordatorio. Dime qué hay que recordar y para qué hora. Ej: pagar luz mañana 09:00"
	case KindInmediata:
		return "Entendido, urgencia inmediata. Cuéntame en una frase qué pasó."
	default:
		return ""
	}
}

func confirmationText(kind Kind, detail string) string {
	if kind == "" {
		kind = KindGeneric
	}
	return "Perfecto, te resumo lo que registré:\n" +
		"- Tipo: " + string(kind) + "\n" +
		"- Detalle: " + shortSummary(detail, 220) + "\n\n" +
		"Responde:\n" +
		"1) Confirmar\n" +
		"2) Editar\n" +
		"3) Cancelar"
}

func retryText(detail string) string {
	return "⚠️ REINTENTO AUTOMÁTICO: urgencia inmediata pendiente de atención.\n" +
		"Resumen: " + shortSummary(detail, 140)
}

// shortSummary collapses whitespace and truncates to maxLen runes with an ellipsis.
func shortSummary(text string, maxLen int) string {
	raw := []rune(strings.Join(strings.Fields(text), " "))
	if len(raw) <= maxLen {
		return string(raw)
	}
	return string(raw[:maxLen-3]) + "..."
}

// splitTitle takes the title from before the first "," (or " - ") and the
// description from the rest. Without a separator the first 80 runes are the title.
func splitTitle(raw, fallback string) (string, string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return fallback, ""
	}
	for _, separator := range []string{",", " - "} {
		if title, rest, found := strings.Cut(text, separator); found {
			title = strings.TrimSpace(title)
			if title == "" {
				title = fallback
			}
			return title, strings.TrimSpace(rest)
		}
	}
	runes := []rune(text)
	if len(runes) > 80 {
		runes = runes[:80]
	}
	return string(runes), text
}

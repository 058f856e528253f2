package meeting

import "fmt"

const (
	msgAskDate             = "Perfecto. ¿Qué fecha te acomoda? (ej: mañana, lunes, 20/03)"
	msgAskTime             = "Genial. ¿A qué hora? (ej: 10:30 o 3pm)"
	msgAskDuration         = "¿Cuánto debería durar? (ej: 30 min, 1 hora)"
	msgAskMode             = "Último dato: ¿modalidad? (videollamada, llamada o presencial)"
	msgRestart             = "Ok, reingresemos los datos. ¿Cuál es el tema de la reunión?"
	msgCancelled           = "Proceso cancelado. Si quieres reintentar, escribe 'agendar reunión'."
	msgConfirmed           = "Listo, reunión agendada. Te envié un archivo de calendario (.ics)."
	msgConfirmedNoArtifact = "Listo, reunión agendada. Te confirmaremos el calendario a la brevedad."
	msgFollowUp            = "Hola, confirmo que tu reunión sigue agendada. Si quieres cambios, responde a este chat."
)

func introText(agentName, userName, reference string) string {
	base := fmt.Sprintf("Hola 👋 Soy %s, asistente de %s.\n", agentName, userName) +
		"Te ayudo a agendar una reunión en formato rápido.\n\n" +
		"Ejemplo de respuesta para tema:\n" +
		"Revisión de propuesta comercial\n\n" +
		"Primero: ¿cuál es el tema de la reunión?"
	if reference != "" {
		return base + "\n\nReferencia:\n" + reference
	}
	return base
}

func summaryText(session Session) string {
	return "Perfecto, este es el borrador de la reunión:\n" +
		"- Tema: " + session.Topic + "\n" +
		"- Fecha: " + session.DateText + "\n" +
		"- Hora: " + session.TimeText + "\n" +
		"- Duración: " + session.DurationText + "\n" +
		"- Modalidad: " + session.ModeText + "\n\n" +
		"Responde:\n" +
		"1) Confirmar y agendar\n" +
		"2) Editar datos\n" +
		"o escribe 'cancelar'."
}

func ownerText(session Session, artifactName string) string {
	text := "📅 Nueva solicitud de reunión\n" +
		"Contacto: " + session.Phone + "\n" +
		"Tema: " + session.Topic + "\n" +
		"Fecha/hora: " + session.DateText + " " + session.TimeText + "\n" +
		"Duración: " + session.DurationText + "\n" +
		"Modalidad: " + session.ModeText
	if artifactName != "" {
		text += "\nICS: " + artifactName
	}
	return text
}

func descriptionText(session Session) string {
	return "Solicitante: " + session.Phone + "\n" +
		"Modalidad: " + session.ModeText + "\n" +
		"Duración declarada: " + session.DurationText + "\n"
}

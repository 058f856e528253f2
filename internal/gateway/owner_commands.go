package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dwizi/wa-assistant/internal/meeting"
	"github.com/dwizi/wa-assistant/internal/state"
	"github.com/dwizi/wa-assistant/internal/urgency"
)

const (
	unknownCommandText = "Comando no reconocido. Usa /ayuda"
	unseenListLimit    = 10
)

// handleCommand executes an owner slash command. Replies go back to the
// owner's own chat; /forzar-reunion also relays its intro to the contact.
func (s *Service) handleCommand(ctx context.Context, owner, text string) (Decision, error) {
	command, arg := splitCommand(text)
	if item, ok := findCommand(command); ok && item.ArgumentRequired && arg == "" {
		return Reply(ReplyDecision{Target: owner, Message: item.Usage()}), nil
	}
	var (
		reply string
		err   error
	)
	switch resolveCommand(command) {
	case "status":
		reply, err = s.Status(ctx)
	case "pausar":
		reply, err = s.setPaused(ctx, true)
	case "reanudar":
		reply, err = s.setPaused(ctx, false)
	case "modo":
		reply, err = s.setMode(ctx, arg)
	case "horario":
		reply, err = s.setBusinessHours(ctx, arg)
	case "forzar-reunion":
		return s.forceMeeting(ctx, owner, arg)
	case "urgencias":
		reply, err = s.unseenUrgencies(ctx)
	case "visto":
		reply, err = s.markSeen(ctx, arg)
	case "reporte":
		reply, err = s.state.DailyReport(ctx, s.now())
	case "ayuda":
		reply = helpText()
	default:
		reply = unknownCommandText
	}
	if err != nil {
		return Silence(), err
	}
	s.logger.Info("owner command", "command", command)
	return Reply(ReplyDecision{Target: owner, Message: reply}), nil
}

// Status renders the assistant configuration and active session counts.
func (s *Service) Status(ctx context.Context) (string, error) {
	config, err := s.state.Config(ctx)
	if err != nil {
		return "", err
	}
	contacts, err := s.state.ListContacts(ctx)
	if err != nil {
		return "", err
	}
	activeUrgency, err := urgency.CountActive(ctx, s.docs)
	if err != nil {
		return "", err
	}
	activeMeeting, err := meeting.CountActive(ctx, s.docs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Estado asistente\n"+
		"- paused: %t\n"+
		"- mode: %s\n"+
		"- business_hours: %s-%s\n"+
		"- contactos en memoria: %d\n"+
		"- sesiones urgencia activas: %d\n"+
		"- sesiones reunión activas: %d",
		config.Paused, config.Mode,
		config.BusinessHours.Start, config.BusinessHours.End,
		len(contacts), activeUrgency, activeMeeting,
	), nil
}

func (s *Service) setPaused(ctx context.Context, paused bool) (string, error) {
	if _, err := s.state.UpdateConfig(ctx, func(config *state.AssistantConfig) error {
		config.Paused = paused
		return nil
	}); err != nil {
		return "", err
	}
	if paused {
		return "Asistente pausado.", nil
	}
	return "Asistente reanudado.", nil
}

func (s *Service) setMode(ctx context.Context, arg string) (string, error) {
	mode, ok := state.ParseMode(strings.Fields(arg)[0])
	if !ok {
		return "Modo inválido. Usa: /modo normal|busy|vacation", nil
	}
	if _, err := s.state.UpdateConfig(ctx, func(config *state.AssistantConfig) error {
		config.Mode = mode
		return nil
	}); err != nil {
		return "", err
	}
	return "Modo actualizado: " + string(mode), nil
}

func (s *Service) setBusinessHours(ctx context.Context, arg string) (string, error) {
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		return "Uso: /horario HH:MM HH:MM", nil
	}
	start, err := state.ParseClock(fields[0])
	if err != nil {
		return "Horario inválido. Usa: /horario HH:MM HH:MM", nil
	}
	end, err := state.ParseClock(fields[1])
	if err != nil {
		return "Horario inválido. Usa: /horario HH:MM HH:MM", nil
	}
	if start >= end {
		return "Horario inválido: el inicio debe ser anterior al término.", nil
	}
	startText, endText := formatClock(start), formatClock(end)
	if _, err := s.state.UpdateConfig(ctx, func(config *state.AssistantConfig) error {
		config.BusinessHours.Start = startText
		config.BusinessHours.End = endText
		return nil
	}); err != nil {
		return "", err
	}
	return "Horario actualizado: " + startText + "-" + endText, nil
}

// forceMeeting opens a meeting dialog for target. Like every command it
// answers the owner, here with the intro text; the same intro is relayed to
// target.
func (s *Service) forceMeeting(ctx context.Context, owner, arg string) (Decision, error) {
	target := strings.Fields(arg)[0]
	if target != owner {
		unlock := s.locks.Lock(target)
		defer unlock()
	}
	result, err := s.meeting.Start(ctx, target)
	if err != nil {
		return Silence(), err
	}
	if result.ContactMessage == "" {
		return Reply(ReplyDecision{Target: owner, Message: "No se pudo iniciar formulario de reunión."}), nil
	}
	s.logger.Info("meeting forced", "phone", target)
	return Reply(ReplyDecision{
		Target:  owner,
		Message: result.ContactMessage,
		Relays:  []RelayMessage{{Target: target, Message: result.ContactMessage}},
	}), nil
}

func (s *Service) unseenUrgencies(ctx context.Context) (string, error) {
	if s.urgencyLog == nil {
		return "Sin urgencias pendientes.", nil
	}
	records, err := s.urgencyLog.Unseen(ctx, unseenListLimit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "Sin urgencias pendientes.", nil
	}
	lines := []string{"Urgencias sin ver:"}
	for _, record := range records {
		lines = append(lines, fmt.Sprintf("- %s [%s] %s %s: %s",
			record.ID, record.Severity, record.Kind,
			record.CreatedAt.UTC().Format("2006-01-02 15:04"),
			compactSnippet(record.Text),
		))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Service) markSeen(ctx context.Context, arg string) (string, error) {
	id := strings.Fields(arg)[0]
	if s.urgencyLog == nil {
		return "No encontré la urgencia " + id + ".", nil
	}
	record, err := s.urgencyLog.MarkSeen(ctx, id)
	if err != nil {
		if errors.Is(err, urgency.ErrRecordNotFound) {
			return "No encontré la urgencia " + id + ".", nil
		}
		return "", err
	}
	return "Urgencia " + record.ID + " marcada como vista.", nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func compactSnippet(input string) string {
	trimmed := strings.Join(strings.Fields(input), " ")
	runes := []rune(trimmed)
	if len(runes) <= 80 {
		return trimmed
	}
	return string(runes[:80]) + "..."
}

package gateway

import "strings"

type SlashCommand struct {
	Name             string
	Aliases          []string
	Description      string
	ArgumentName     string
	ArgumentRequired bool
}

// Usage is the reply for a command invoked without its required argument.
func (c SlashCommand) Usage() string {
	return strings.TrimSpace("Uso: /" + c.Name + " " + c.ArgumentName)
}

func SlashCommands() []SlashCommand {
	return []SlashCommand{
		{
			Name:        "status",
			Aliases:     []string{"agente", "agente-status"},
			Description: "Estado del asistente y sesiones activas",
		},
		{
			Name:        "pausar",
			Aliases:     []string{"agente-off"},
			Description: "Pausar respuestas automáticas",
		},
		{
			Name:        "reanudar",
			Aliases:     []string{"agente-on"},
			Description: "Reanudar respuestas automáticas",
		},
		{
			Name:             "modo",
			Description:      "Cambiar modo",
			ArgumentName:     "normal|busy|vacation",
			ArgumentRequired: true,
		},
		{
			Name:             "horario",
			Description:      "Definir horario de atención",
			ArgumentName:     "HH:MM HH:MM",
			ArgumentRequired: true,
		},
		{
			Name:             "forzar-reunion",
			Description:      "Iniciar formulario de reunión para un contacto",
			ArgumentName:     "+MSISDN",
			ArgumentRequired: true,
		},
		{
			Name:        "urgencias",
			Description: "Listar urgencias no vistas",
		},
		{
			Name:             "visto",
			Description:      "Marcar una urgencia como vista",
			ArgumentName:     "<urg-id>",
			ArgumentRequired: true,
		},
		{
			Name:        "reporte",
			Description: "Reporte de las últimas 24 horas",
		},
		{
			Name:        "ayuda",
			Description: "Mostrar esta ayuda",
		},
	}
}

func NormalizeCommandName(command string) string {
	normalized := strings.ToLower(strings.TrimSpace(command))
	if normalized == "" {
		return ""
	}
	return strings.ReplaceAll(normalized, "_", "-")
}

// findCommand looks command up by name or alias.
func findCommand(command string) (SlashCommand, bool) {
	for _, item := range SlashCommands() {
		if item.Name == command {
			return item, true
		}
		for _, alias := range item.Aliases {
			if alias == command {
				return item, true
			}
		}
	}
	return SlashCommand{}, false
}

// resolveCommand maps aliases to their canonical command name.
func resolveCommand(command string) string {
	if item, ok := findCommand(command); ok {
		return item.Name
	}
	return command
}

func splitCommand(text string) (string, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ""
	}
	trimmed = strings.TrimPrefix(trimmed, "/")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", ""
	}
	command := strings.ToLower(fields[0])
	if idx := strings.Index(command, "@"); idx >= 0 {
		command = command[:idx]
	}
	command = NormalizeCommandName(command)

	if len(fields) == 1 {
		return command, ""
	}
	argStart := strings.IndexAny(trimmed, " \t\n")
	if argStart < 0 {
		return command, ""
	}
	return command, strings.TrimSpace(trimmed[argStart+1:])
}

func helpText() string {
	lines := []string{"Comandos:"}
	for _, item := range SlashCommands() {
		line := "/" + item.Name
		if item.ArgumentName != "" {
			line += " " + item.ArgumentName
		}
		for _, alias := range item.Aliases {
			line += " | /" + alias
		}
		lines = append(lines, line+" - "+item.Description)
	}
	return strings.Join(lines, "\n")
}

// Package scripts loads the assistant's identity and canned replies from a
// YAML file that the operator can edit while the process runs.
package scripts

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dwizi/wa-assistant/internal/triage"
)

const (
	KeyTechHelp         = "tech_help"
	KeyUrgentCase       = "urgent_case"
	KeyMeetingRequest   = "meeting_request"
	KeyWelcomeGeneral   = "welcome_general"
	KeyAutoReplyDefault = "auto_reply_default"
)

type Identity struct {
	AgentName string `yaml:"agent_name"`
	UserName  string `yaml:"user_name"`
}

type File struct {
	Identity Identity          `yaml:"identity"`
	Scripts  map[string]string `yaml:"scripts"`
}

func Defaults() File {
	return File{
		Identity: Identity{AgentName: "asistente", UserName: "Lucas"},
		Scripts: map[string]string{
			KeyTechHelp:         "Hola, recibí tu consulta técnica. Cuéntame qué error ves y desde cuándo ocurre, y Lucas lo revisará apenas pueda.",
			KeyUrgentCase:       "Recibí tu mensaje urgente. Lucas será notificado; si es crítico, indica un número de contacto.",
			KeyWelcomeGeneral:   "Hola, gracias por escribir. Lucas responderá apenas esté disponible. Si quieres agendar, escribe 'agendar reunión'.",
			KeyAutoReplyDefault: "Gracias por tu mensaje. Lucas te responderá pronto.",
		},
	}
}

// Catalog is safe for concurrent use; Reload swaps the whole file atomically.
type Catalog struct {
	path string
	mu   sync.RWMutex
	file File
}

// Load reads path into a catalog. A missing path (or empty path) yields the defaults.
func Load(path string) (*Catalog, error) {
	catalog := &Catalog{path: strings.TrimSpace(path), file: Defaults()}
	if err := catalog.Reload(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (c *Catalog) Path() string {
	return c.path
}

// Reload re-reads the file. On a parse error the previous contents stay active.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.mu.Lock()
		c.file = Defaults()
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read scripts file: %w", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.file = parsed
	c.mu.Unlock()
	return nil
}

// Parse decodes YAML content and fills unset identity fields from the defaults.
func Parse(data []byte) (File, error) {
	var parsed File
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return File{}, fmt.Errorf("parse scripts file: %w", err)
	}
	defaults := Defaults()
	if strings.TrimSpace(parsed.Identity.AgentName) == "" {
		parsed.Identity.AgentName = defaults.Identity.AgentName
	}
	if strings.TrimSpace(parsed.Identity.UserName) == "" {
		parsed.Identity.UserName = defaults.Identity.UserName
	}
	if parsed.Scripts == nil {
		parsed.Scripts = map[string]string{}
	}
	return parsed, nil
}

func (c *Catalog) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.Identity
}

func (c *Catalog) Script(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.TrimSpace(c.file.Scripts[key])
}

// Pick returns the canned reply for intent, or ok=false when no template is configured.
func (c *Catalog) Pick(intent triage.Intent) (string, bool) {
	var reply string
	switch intent {
	case triage.IntentSupport:
		reply = c.Script(KeyTechHelp)
	case triage.IntentUrgency:
		reply = c.Script(KeyUrgentCase)
	case triage.IntentMeeting:
		reply = c.Script(KeyMeetingRequest)
	case triage.IntentSales, triage.IntentPersonal, triage.IntentGeneral:
		reply = c.Script(KeyWelcomeGeneral)
		if reply == "" {
			reply = c.Script(KeyAutoReplyDefault)
		}
	default:
		reply = c.Script(KeyAutoReplyDefault)
	}
	return reply, reply != ""
}

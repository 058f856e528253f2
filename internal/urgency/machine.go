package urgency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/wa-assistant/internal/calendar"
	"github.com/dwizi/wa-assistant/internal/roles"
	"github.com/dwizi/wa-assistant/internal/scripts"
	"github.com/dwizi/wa-assistant/internal/store"
	"github.com/dwizi/wa-assistant/internal/textnorm"
	"github.com/dwizi/wa-assistant/internal/when"
)

const (
	RetryDelay       = 120 * time.Second
	reminderDuration = 30 * time.Minute
	eventDuration    = 60 * time.Minute
	allDayDuration   = 12 * time.Hour
	fallbackOffset   = time.Hour
)

var (
	cancelWords  = []string{"cancelar", "cancel", "salir", "anular"}
	backWords    = []string{"volver", "atras", "corregir", "editar"}
	confirmWords = []string{"1", "si", "confirmar", "ok", "dale"}
	editWords    = []string{"2", "editar", "corregir", "cambiar"}
	abortWords   = []string{"3", "cancelar", "anular", "salir"}
	allDayWords  = []string{"2", "todo el dia"}
	timedWords   = []string{"1", "inicio fin", "inicio y termino"}

	optionSwitchPattern = regexp.MustCompile(`(?:opcion|opcion:|cambiar a|ir a)\s*([1-4])`)
	optionAliases       = map[string]Kind{
		"evento":             KindEvento,
		"nota":               KindNota,
		"recordatorio":       KindRecordatorio,
		"inmediata":          KindInmediata,
		"urgencia inmediata": KindInmediata,
	}
	optionKinds = map[byte]Kind{'1': KindEvento, '2': KindNota, '3': KindRecordatorio, '4': KindInmediata}
)

type IdentityProvider interface {
	Identity() scripts.Identity
}

type Retry struct {
	Message string
	Delay   time.Duration
}

// Result is what one inbound message produced. Empty fields mean "nothing to send".
type Result struct {
	State        State
	VIPMessage   string
	OwnerMessage string
	ArtifactRef  string
	Retry        *Retry
	Record       *Record
}

func (r Result) Empty() bool {
	return r.VIPMessage == "" && r.OwnerMessage == "" && r.ArtifactRef == "" && r.Retry == nil
}

type Machine struct {
	docs     store.DocumentStore
	registry *Registry
	calendar calendar.Creator
	identity IdentityProvider
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewMachine(docs store.DocumentStore, registry *Registry, creator calendar.Creator, identity IdentityProvider, location *time.Location, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if location == nil {
		location = time.UTC
	}
	return &Machine{
		docs:     docs,
		registry: registry,
		calendar: creator,
		identity: identity,
		location: location,
		logger:   logger.With("component", "urgency"),
		now:      time.Now,
	}
}

func (m *Machine) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
		m.registry.SetClock(now)
	}
}

func (m *Machine) SetLocation(location *time.Location) {
	if location != nil {
		m.location = location
	}
}

type finalization struct {
	kind   Kind
	detail string
	allDay bool
}

type step struct {
	write    bool
	result   Result
	finalize *finalization
}

// Handle advances the contact's urgency session by one message. The session
// transition is committed before any record or artifact is produced, so a
// repeated confirmation after close finds no active session.
func (m *Machine) Handle(ctx context.Context, phone, text string) (Result, error) {
	phone = strings.TrimSpace(phone)
	text = strings.TrimSpace(text)
	now := m.now()

	var plan step
	if _, err := store.UpdateJSON(ctx, m.docs, SessionKey(phone), func(session *Session, exists bool) error {
		plan = m.transition(session, exists && session.State.Active(), phone, text, now)
		if !plan.write {
			return store.ErrSkipWrite
		}
		return nil
	}); err != nil {
		return Result{}, fmt.Errorf("advance urgency session for %s: %w", phone, err)
	}
	if plan.finalize != nil {
		if err := m.finish(ctx, phone, *plan.finalize, &plan.result); err != nil {
			return Result{}, err
		}
	}
	return plan.result, nil
}

func (m *Machine) transition(session *Session, active bool, phone, text string, now time.Time) step {
	identity := m.names()
	norm := textnorm.Fold(text)
	if !active {
		if !roles.HasUrgencyTrigger(norm) {
			return step{result: Result{State: StateNone}}
		}
		*session = Session{
			ID:        uuid.NewString(),
			Phone:     phone,
			State:     StateAwaitingOption,
			CreatedAt: now.UTC(),
		}
		return reply(session, now, menuText(identity.AgentName, identity.UserName))
	}

	if textnorm.InSet(norm, cancelWords...) {
		return cancel(session, now)
	}
	if option, kind, ok := explicitSwitch(norm); ok && session.State.midFlow() {
		session.Kind = kind
		session.State = StateAwaitingDetail
		session.Detail = ""
		return reply(session, now, fmt.Sprintf("Cambié a opción %c. Ahora envíame el detalle.", option))
	}
	if textnorm.InSet(norm, backWords...) {
		return back(session, now, identity)
	}

	switch session.State {
	case StateAwaitingOption:
		kind, ok := parseOption(norm)
		if !ok {
			return reply(session, now, menuText(identity.AgentName, identity.UserName))
		}
		session.Kind = kind
		session.State = StateAwaitingDetail
		return reply(session, now, promptForKind(kind, identity.UserName))

	case StateAwaitingDetail:
		if text == "" {
			return reply(session, now, msgEmptyDetail)
		}
		session.Detail = text
		session.State = StateConfirmingDetail
		return reply(session, now, confirmationText(session.Kind, text))

	case StateConfirmingDetail:
		switch {
		case textnorm.InSet(norm, editWords...):
			session.State = StateAwaitingDetail
			return reply(session, now, msgEditDetail)
		case textnorm.InSet(norm, abortWords...):
			return cancel(session, now)
		case !textnorm.InSet(norm, confirmWords...):
			return reply(session, now, confirmationText(session.Kind, session.Detail))
		}
		if session.Kind == KindEvento {
			session.State = StateAwaitingEventSetup
			return reply(session, now, msgEventConfig)
		}
		plan := reply(session, now, "")
		plan.finalize = &finalization{kind: session.Kind, detail: session.Detail}
		session.State = StateClosed
		plan.result.State = StateClosed
		return plan

	case StateAwaitingEventSetup:
		var allDay bool
		switch {
		case textnorm.InSet(norm, allDayWords...):
			allDay = true
		case textnorm.InSet(norm, timedWords...):
			allDay = false
		default:
			return reply(session, now, msgEventConfigNok)
		}
		plan := step{write: true, finalize: &finalization{kind: KindEvento, detail: session.Detail, allDay: allDay}}
		session.State = StateClosed
		session.UpdatedAt = now.UTC()
		plan.result.State = StateClosed
		return plan
	}

	session.State = StateClosed
	session.UpdatedAt = now.UTC()
	return step{write: true, result: Result{State: StateClosed}}
}

func (m *Machine) finish(ctx context.Context, phone string, final finalization, result *Result) error {
	identity := m.names()
	local := m.now().In(m.location)
	switch {
	case final.kind == KindEvento:
		title, description := splitTitle(final.detail, "Evento VIP")
		if description == "" {
			description = final.detail
		}
		duration, prefix := eventDuration, "[EVENTO INICIO/FIN] "
		if final.allDay {
			duration, prefix = allDayDuration, "[EVENTO TODO EL DIA] "
		}
		event := calendar.Event{
			Title:       title,
			Start:       when.ResolveStart(final.detail, final.detail, local, fallbackOffset),
			Duration:    duration,
			Description: description,
		}
		ref := m.createArtifact(ctx, phone, event)
		if err := m.register(ctx, phone, prefix+final.detail+artifactSuffix(ref), KindEvento, result); err != nil {
			return err
		}
		result.ArtifactRef = ref
		result.VIPMessage = fmt.Sprintf("Gracias, ya registré este evento para %s y generé un calendario.", identity.UserName)

	case final.kind == KindRecordatorio && when.HasTimeSemantics(final.detail, local):
		event := calendar.Event{
			Title:       "Recordatorio VIP",
			Start:       when.ResolveStart(final.detail, final.detail, local, fallbackOffset),
			Duration:    reminderDuration,
			Description: final.detail,
		}
		ref := m.createArtifact(ctx, phone, event)
		if err := m.register(ctx, phone, "[RECORDATORIO VIP] "+final.detail+artifactSuffix(ref), KindRecordatorio, result); err != nil {
			return err
		}
		result.ArtifactRef = ref
		result.VIPMessage = "Perfecto. Ya registré el recordatorio y lo envié con calendario."

	default:
		kind := final.kind
		if kind == "" {
			kind = KindGeneric
		}
		if err := m.register(ctx, phone, final.detail, kind, result); err != nil {
			return err
		}
		result.VIPMessage = fmt.Sprintf("Gracias, ya quedó registrado y se lo envié a %s.", identity.UserName)
		if kind == KindInmediata {
			result.VIPMessage = fmt.Sprintf("Ya lo marqué como URGENCIA INMEDIATA y lo estoy escalando a %s.", identity.UserName)
			result.Retry = &Retry{Message: retryText(final.detail), Delay: RetryDelay}
		}
	}
	return nil
}

func (m *Machine) register(ctx context.Context, phone, text string, kind Kind, result *Result) error {
	record, err := m.registry.Register(ctx, phone, text, SourceChat, kind)
	if err != nil {
		return err
	}
	if record.IsDuplicate {
		m.logger.Info("duplicate urgency suppressed", "phone", phone, "record_id", record.ID)
	}
	result.Record = &record
	result.OwnerMessage = OwnerAlert(record)
	return nil
}

// createArtifact degrades to an empty reference when the calendar backend fails;
// the record is still registered and the owner still alerted.
func (m *Machine) createArtifact(ctx context.Context, phone string, event calendar.Event) string {
	if m.calendar == nil {
		return ""
	}
	ref, err := m.calendar.CreateEvent(ctx, event)
	if err != nil {
		m.logger.Error("create urgency calendar artifact", "phone", phone, "error", err)
		return ""
	}
	return ref
}

func (m *Machine) names() scripts.Identity {
	if m.identity == nil {
		return scripts.Defaults().Identity
	}
	return m.identity.Identity()
}

func artifactSuffix(ref string) string {
	if ref == "" {
		return ""
	}
	return " (ICS: " + filepath.Base(ref) + ")"
}

func reply(session *Session, now time.Time, message string) step {
	session.UpdatedAt = now.UTC()
	return step{write: true, result: Result{State: session.State, VIPMessage: message}}
}

func cancel(session *Session, now time.Time) step {
	session.State = StateClosed
	session.Detail = ""
	return reply(session, now, msgCancelled)
}

// back steps one state toward the menu, never past it.
func back(session *Session, now time.Time, identity scripts.Identity) step {
	switch session.State {
	case StateAwaitingDetail:
		session.State = StateAwaitingOption
		session.Kind = ""
	case StateConfirmingDetail, StateAwaitingEventSetup:
		session.State = StateAwaitingDetail
	}
	session.Detail = ""
	if session.State == StateAwaitingOption {
		return reply(session, now, "Volvimos un paso atrás. Continúa desde aquí:\n"+menuText(identity.AgentName, identity.UserName))
	}
	return reply(session, now, msgRewriteDetail)
}

// parseOption accepts a leading digit 1-4, an alias, or "opcion N".
func parseOption(norm string) (Kind, bool) {
	if norm == "" {
		return "", false
	}
	if kind, ok := optionKinds[norm[0]]; ok {
		return kind, true
	}
	if kind, ok := optionAliases[norm]; ok {
		return kind, true
	}
	if _, kind, ok := explicitSwitch(norm); ok {
		return kind, true
	}
	return "", false
}

func explicitSwitch(norm string) (byte, Kind, bool) {
	match := optionSwitchPattern.FindStringSubmatch(norm)
	if match == nil {
		return 0, "", false
	}
	option := match[1][0]
	return option, optionKinds[option], true
}

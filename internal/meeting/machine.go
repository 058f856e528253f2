package meeting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/wa-assistant/internal/calendar"
	"github.com/dwizi/wa-assistant/internal/scripts"
	"github.com/dwizi/wa-assistant/internal/store"
	"github.com/dwizi/wa-assistant/internal/textnorm"
	"github.com/dwizi/wa-assistant/internal/when"
)

const (
	FollowUpDelay  = 24 * time.Hour
	SyncSource     = "meeting_session"
	maxTitleRunes  = 120
	fallbackOffset = time.Hour
)

var (
	triggerWords = []string{"reunion", "agendar", "agenda", "meeting", "llamada", "cita", "calendario", "juntarnos"}
	cancelWords  = []string{"cancelar", "salir", "anular"}
	confirmWords = []string{"1", "si", "confirmar", "ok", "dale"}
	editWords    = []string{"2", "editar", "corregir"}
)

// HasTrigger reports whether text asks for a meeting.
func HasTrigger(text string) bool {
	return textnorm.ContainsAny(textnorm.Fold(text), triggerWords)
}

type Scripts interface {
	Identity() scripts.Identity
	Script(key string) string
}

type FollowUp struct {
	Message string
	Delay   time.Duration
}

type Result struct {
	State          State
	ContactMessage string
	OwnerMessage   string
	ArtifactRef    string
	FollowUp       *FollowUp
}

func (r Result) Empty() bool {
	return r.ContactMessage == "" && r.OwnerMessage == "" && r.ArtifactRef == ""
}

type Machine struct {
	docs     store.DocumentStore
	calendar calendar.Creator
	queue    calendar.SyncQueue
	scripts  Scripts
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewMachine(docs store.DocumentStore, creator calendar.Creator, queue calendar.SyncQueue, catalog Scripts, location *time.Location, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if location == nil {
		location = time.UTC
	}
	return &Machine{
		docs:     docs,
		calendar: creator,
		queue:    queue,
		scripts:  catalog,
		location: location,
		logger:   logger.With("component", "meeting"),
		now:      time.Now,
	}
}

func (m *Machine) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *Machine) SetLocation(location *time.Location) {
	if location != nil {
		m.location = location
	}
}

type step struct {
	write    bool
	result   Result
	finalize *Session
}

// Handle advances the contact's meeting dialog by one message. Values are
// stored verbatim; parsing happens only when the meeting is confirmed.
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
		return Result{}, fmt.Errorf("advance meeting session for %s: %w", phone, err)
	}
	if plan.finalize != nil {
		m.finish(ctx, *plan.finalize, &plan.result)
	}
	return plan.result, nil
}

// Start opens a fresh dialog for phone, replacing any session in progress.
func (m *Machine) Start(ctx context.Context, phone string) (Result, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Result{}, fmt.Errorf("start meeting: phone is required")
	}
	now := m.now()
	var plan step
	if _, err := store.UpdateJSON(ctx, m.docs, SessionKey(phone), func(session *Session, exists bool) error {
		plan = m.open(session, phone, now)
		return nil
	}); err != nil {
		return Result{}, fmt.Errorf("start meeting for %s: %w", phone, err)
	}
	return plan.result, nil
}

func (m *Machine) transition(session *Session, active bool, phone, text string, now time.Time) step {
	norm := textnorm.Fold(text)
	if !active {
		if !textnorm.ContainsAny(norm, triggerWords) {
			return step{result: Result{State: StateNone}}
		}
		return m.open(session, phone, now)
	}
	if textnorm.InSet(norm, cancelWords...) {
		session.State = StateClosed
		return reply(session, now, msgCancelled)
	}

	switch session.State {
	case StateAwaitingTopic:
		session.Topic = text
		session.State = StateAwaitingDate
		return reply(session, now, msgAskDate)
	case StateAwaitingDate:
		session.DateText = text
		session.State = StateAwaitingTime
		return reply(session, now, msgAskTime)
	case StateAwaitingTime:
		session.TimeText = text
		session.State = StateAwaitingDuration
		return reply(session, now, msgAskDuration)
	case StateAwaitingDuration:
		session.DurationText = text
		session.State = StateAwaitingMode
		return reply(session, now, msgAskMode)
	case StateAwaitingMode:
		session.ModeText = text
		session.State = StateConfirming
		return reply(session, now, summaryText(*session))
	case StateConfirming:
		switch {
		case textnorm.InSet(norm, confirmWords...):
			session.State = StateClosed
			plan := reply(session, now, "")
			confirmed := *session
			plan.finalize = &confirmed
			return plan
		case textnorm.InSet(norm, editWords...):
			session.State = StateAwaitingTopic
			session.Topic, session.DateText, session.TimeText, session.DurationText, session.ModeText = "", "", "", "", ""
			return reply(session, now, msgRestart)
		default:
			return reply(session, now, summaryText(*session))
		}
	}
	session.State = StateClosed
	return reply(session, now, "")
}

func (m *Machine) open(session *Session, phone string, now time.Time) step {
	*session = Session{
		ID:        uuid.NewString(),
		Phone:     phone,
		State:     StateAwaitingTopic,
		CreatedAt: now.UTC(),
	}
	identity := scripts.Defaults().Identity
	reference := ""
	if m.scripts != nil {
		identity = m.scripts.Identity()
		reference = m.scripts.Script(scripts.KeyMeetingRequest)
	}
	return reply(session, now, introText(identity.AgentName, identity.UserName, reference))
}

// finish runs after the closed state is committed: artifact, sync entry, messages.
func (m *Machine) finish(ctx context.Context, session Session, result *Result) {
	local := m.now().In(m.location)
	event := calendar.Event{
		Title:       truncateRunes("Reunión: "+session.Topic, maxTitleRunes),
		Start:       when.ResolveStart(session.DateText, session.TimeText, local, fallbackOffset),
		Duration:    time.Duration(when.ParseDuration(session.DurationText)) * time.Minute,
		Description: descriptionText(session),
		Location:    truncateRunes(session.ModeText, maxTitleRunes),
	}

	ref := ""
	if m.calendar != nil {
		created, err := m.calendar.CreateEvent(ctx, event)
		if err != nil {
			m.logger.Error("create meeting calendar artifact", "phone", session.Phone, "error", err)
		} else {
			ref = created
		}
	}
	if m.queue != nil {
		if err := m.queue.Enqueue(ctx, calendar.NewSyncEntry(SyncSource, session.Phone, event, ref)); err != nil {
			m.logger.Error("enqueue calendar sync", "phone", session.Phone, "error", err)
		}
	}

	artifactName := ""
	if ref != "" {
		artifactName = filepath.Base(ref)
	}
	result.ArtifactRef = ref
	result.OwnerMessage = ownerText(session, artifactName)
	result.ContactMessage = msgConfirmed
	if ref == "" {
		result.ContactMessage = msgConfirmedNoArtifact
	}
	result.FollowUp = &FollowUp{Message: msgFollowUp, Delay: FollowUpDelay}
}

func reply(session *Session, now time.Time, message string) step {
	session.UpdatedAt = now.UTC()
	return step{write: true, result: Result{State: session.State, ContactMessage: message}}
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

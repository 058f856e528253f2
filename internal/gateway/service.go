// Package gateway turns one inbound (sender, text) pair into a routing Decision.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/wa-assistant/internal/meeting"
	"github.com/dwizi/wa-assistant/internal/roles"
	"github.com/dwizi/wa-assistant/internal/state"
	"github.com/dwizi/wa-assistant/internal/store"
	"github.com/dwizi/wa-assistant/internal/triage"
	"github.com/dwizi/wa-assistant/internal/urgency"
)

const (
	offHoursDefaultText = "Hola, en este momento estoy fuera de horario. " +
		"Si es urgente escribe URGENTE. Si es reunión, escribe 'agendar reunión' y te respondo apenas esté activo."
	offHoursVacationText = "Hola, estoy en modo vacaciones. Puedo dejar tu mensaje registrado. " +
		"Si necesitas reunión, escribe 'agendar reunión' y te contactaré en cuanto vuelva."

	urgencyRetryKeyPrefix    = "urgency_retry:"
	meetingFollowUpKeyPrefix = "meeting_followup:"
)

type UrgencyFlow interface {
	Handle(ctx context.Context, phone, text string) (urgency.Result, error)
}

type MeetingFlow interface {
	Handle(ctx context.Context, phone, text string) (meeting.Result, error)
	Start(ctx context.Context, phone string) (meeting.Result, error)
}

type UrgencyLog interface {
	Unseen(ctx context.Context, limit int) ([]urgency.Record, error)
	MarkSeen(ctx context.Context, id string) (urgency.Record, error)
}

type ScriptPicker interface {
	Pick(intent triage.Intent) (string, bool)
}

type Options struct {
	Validator  roles.Validator
	State      *state.Store
	Urgency    UrgencyFlow
	Meeting    MeetingFlow
	UrgencyLog UrgencyLog
	Scripts    ScriptPicker
	Logger     *slog.Logger
}

type Service struct {
	validator  roles.Validator
	state      *state.Store
	docs       store.DocumentStore
	urgency    UrgencyFlow
	meeting    MeetingFlow
	urgencyLog UrgencyLog
	scripts    ScriptPicker
	locks      *store.KeyedMutex
	logger     *slog.Logger
	now        func() time.Time
}

func New(options Options) *Service {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		validator:  options.Validator,
		state:      options.State,
		docs:       options.State.Documents(),
		urgency:    options.Urgency,
		meeting:    options.Meeting,
		urgencyLog: options.UrgencyLog,
		scripts:    options.Scripts,
		locks:      store.NewKeyedMutex(),
		logger:     logger.With("component", "gateway"),
		now:        time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Route decides what happens with one inbound message. Handlers for the same
// sender are serialized; a panic anywhere below degrades to silence.
func (s *Service) Route(ctx context.Context, sender, text string) (decision Decision, err error) {
	sender = strings.TrimSpace(sender)
	text = strings.TrimSpace(text)
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("route panicked", "phone", sender, "panic", fmt.Sprint(recovered))
			decision, err = Silence(), nil
		}
	}()

	validation := s.validator.Validate(sender, text)
	if sender == "" {
		return Silence(), nil
	}
	unlock := s.locks.Lock(sender)
	defer unlock()

	if validation.Role == roles.RoleOwner {
		return s.routeOwner(ctx, sender, text)
	}

	classification := triage.Classify(text)
	if _, err := s.state.RecordInbound(ctx, sender, text, classification); err != nil {
		return Silence(), err
	}
	s.metric(ctx, state.MetricInbound, sender, classification)

	config, err := s.state.Config(ctx)
	if err != nil {
		return Silence(), err
	}
	if config.Paused {
		return Silence(), nil
	}

	switch validation.Role {
	case roles.RoleVIP:
		if !validation.IsUrgency {
			_, active, err := urgency.ActiveSession(ctx, s.docs, sender)
			if err != nil {
				return Silence(), err
			}
			if !active {
				return Silence(), nil
			}
		}
		return s.routeUrgency(ctx, sender, text, classification)
	case roles.RoleOther:
		return s.routeContact(ctx, sender, text, classification, config)
	default:
		return Silence(), nil
	}
}

func (s *Service) routeOwner(ctx context.Context, owner, text string) (Decision, error) {
	if strings.HasPrefix(text, "/") {
		return s.handleCommand(ctx, owner, text)
	}
	return Owner(OwnerDecision{Target: owner}), nil
}

func (s *Service) routeUrgency(ctx context.Context, sender, text string, classification triage.Classification) (Decision, error) {
	result, err := s.urgency.Handle(ctx, sender, text)
	if err != nil {
		return Silence(), err
	}
	if result.Empty() {
		return Silence(), nil
	}
	s.metric(ctx, state.MetricUrgencyReply, sender, classification)

	owner := s.validator.Owner()
	reply := ReplyDecision{
		Target:       sender,
		Message:      result.VIPMessage,
		Owner:        owner,
		OwnerMessage: result.OwnerMessage,
		Attachments:  Attachments{Contact: result.ArtifactRef, Owner: result.ArtifactRef},
	}
	if result.Retry != nil && result.Retry.Message != "" && owner != "" {
		reply.Delayed = append(reply.Delayed, DelayedMessage{
			Key:     urgencyRetryKeyPrefix + sender,
			Target:  owner,
			Message: result.Retry.Message,
			Delay:   result.Retry.Delay,
		})
	}
	s.logger.Info("urgency flow reply", "phone", sender, "state", string(result.State))
	return Reply(reply), nil
}

func (s *Service) routeContact(ctx context.Context, sender, text string, classification triage.Classification, config state.AssistantConfig) (Decision, error) {
	_, meetingActive, err := meeting.ActiveSession(ctx, s.docs, sender)
	if err != nil {
		return Silence(), err
	}
	if !meetingActive && text == "" {
		return Silence(), nil
	}

	if !meetingActive && classification.Intent != triage.IntentMeeting && !config.WithinBusinessHours(s.now()) {
		message := offHoursDefaultText
		if config.Mode == state.ModeVacation {
			message = offHoursVacationText
		}
		if err := s.autoReply(ctx, state.MetricAutoReplyOffHour, sender, classification); err != nil {
			return Silence(), err
		}
		return Reply(ReplyDecision{Target: sender, Message: message}), nil
	}

	result, err := s.meeting.Handle(ctx, sender, text)
	if err != nil {
		return Silence(), err
	}
	if !result.Empty() {
		if err := s.autoReply(ctx, state.MetricMeetingReply, sender, classification); err != nil {
			return Silence(), err
		}
		reply := ReplyDecision{
			Target:       sender,
			Message:      result.ContactMessage,
			Owner:        s.validator.Owner(),
			OwnerMessage: result.OwnerMessage,
			Attachments:  Attachments{Contact: result.ArtifactRef, Owner: result.ArtifactRef},
		}
		if result.FollowUp != nil && result.FollowUp.Message != "" {
			reply.Delayed = append(reply.Delayed, DelayedMessage{
				Key:     meetingFollowUpKeyPrefix + sender,
				Target:  sender,
				Message: result.FollowUp.Message,
				Delay:   result.FollowUp.Delay,
			})
		}
		return Reply(reply), nil
	}

	if classification.Intent == triage.IntentMeeting || s.scripts == nil {
		return Silence(), nil
	}
	scripted, ok := s.scripts.Pick(classification.Intent)
	if !ok {
		return Silence(), nil
	}
	if err := s.autoReply(ctx, state.MetricScriptedReply, sender, classification); err != nil {
		return Silence(), err
	}
	return Reply(ReplyDecision{Target: sender, Message: scripted}), nil
}

func (s *Service) autoReply(ctx context.Context, kind, sender string, classification triage.Classification) error {
	if err := s.state.IncrementAutoReply(ctx, sender); err != nil {
		return err
	}
	s.metric(ctx, kind, sender, classification)
	return nil
}

// metric is best-effort: a failed write is logged and never changes the decision.
func (s *Service) metric(ctx context.Context, kind, sender string, classification triage.Classification) {
	err := s.state.AddMetric(ctx, state.MetricEvent{
		At:       s.now().UTC(),
		Kind:     kind,
		Phone:    sender,
		Intent:   classification.Intent,
		Priority: classification.Priority,
	})
	if err != nil {
		s.logger.Warn("metric write failed", "phone", sender, "kind", kind, "error", err)
	}
}

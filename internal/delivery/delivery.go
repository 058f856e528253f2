// Package delivery turns routing decisions into outbound sends.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/wa-assistant/internal/gateway"
)

type Sender interface {
	Send(ctx context.Context, target, message string) error
	SendWithAttachment(ctx context.Context, target, message, artifactRef string) error
}

type Scheduler interface {
	Schedule(key, target, message string, delay time.Duration) time.Duration
}

type Dispatcher struct {
	sender    Sender
	scheduler Scheduler
	owner     string
	logger    *slog.Logger
}

func NewDispatcher(sender Sender, scheduler Scheduler, owner string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		sender:    sender,
		scheduler: scheduler,
		owner:     strings.TrimSpace(owner),
		logger:    logger.With("component", "delivery"),
	}
}

// Dispatch performs every send a decision asks for. Owner and silence
// decisions send nothing. The owner copy carries the calendar artifact only
// when the contact message did not.
func (d *Dispatcher) Dispatch(ctx context.Context, decision gateway.Decision) error {
	switch decision.Policy() {
	case gateway.PolicyReplyToVIP:
		reply, _ := decision.Reply()
		return d.dispatchReply(ctx, reply)
	case gateway.PolicyAlertOwner:
		alert, _ := decision.Alert()
		target := alert.Target
		if target == "" {
			target = d.owner
		}
		return d.send(ctx, target, alert.Message, "")
	default:
		return nil
	}
}

func (d *Dispatcher) dispatchReply(ctx context.Context, reply gateway.ReplyDecision) error {
	var errs []error
	contactAttached := reply.Attachments.Contact != "" && reply.Message != ""
	if reply.Message != "" {
		errs = append(errs, d.send(ctx, reply.Target, reply.Message, reply.Attachments.Contact))
	}
	if reply.OwnerMessage != "" {
		owner := reply.Owner
		if owner == "" {
			owner = d.owner
		}
		attachment := ""
		if !contactAttached {
			attachment = reply.Attachments.Owner
		}
		errs = append(errs, d.send(ctx, owner, reply.OwnerMessage, attachment))
	}
	for _, relay := range reply.Relays {
		errs = append(errs, d.send(ctx, relay.Target, relay.Message, ""))
	}
	for _, delayed := range reply.Delayed {
		if d.scheduler == nil {
			d.logger.Warn("delayed message dropped: no scheduler", "key", delayed.Key, "target", delayed.Target)
			continue
		}
		d.scheduler.Schedule(delayed.Key, delayed.Target, delayed.Message, delayed.Delay)
	}
	return errors.Join(errs...)
}

// NotifyOwner sends message to the configured owner as an alert.
func (d *Dispatcher) NotifyOwner(ctx context.Context, message string) error {
	return d.Dispatch(ctx, gateway.Alert(gateway.AlertDecision{Target: d.owner, Message: message}))
}

func (d *Dispatcher) send(ctx context.Context, target, message, attachment string) error {
	target = strings.TrimSpace(target)
	if target == "" || strings.TrimSpace(message) == "" {
		return nil
	}
	var err error
	if attachment != "" {
		err = d.sender.SendWithAttachment(ctx, target, message, attachment)
	} else {
		err = d.sender.Send(ctx, target, message)
	}
	if err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	return nil
}

type outboundLine struct {
	At         time.Time `json:"at"`
	Target     string    `json:"target"`
	Message    string    `json:"message"`
	Attachment string    `json:"attachment,omitempty"`
}

// JSONLineSender writes one JSON object per outbound message, for a
// transport process reading the other end of the pipe.
type JSONLineSender struct {
	mu      sync.Mutex
	encoder *json.Encoder
	now     func() time.Time
}

func NewJSONLineSender(writer io.Writer) *JSONLineSender {
	encoder := json.NewEncoder(writer)
	encoder.SetEscapeHTML(false)
	return &JSONLineSender{encoder: encoder, now: time.Now}
}

func (s *JSONLineSender) Send(ctx context.Context, target, message string) error {
	return s.SendWithAttachment(ctx, target, message, "")
}

func (s *JSONLineSender) SendWithAttachment(ctx context.Context, target, message, artifactRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(outboundLine{
		At:         s.now().UTC(),
		Target:     target,
		Message:    message,
		Attachment: artifactRef,
	}); err != nil {
		return fmt.Errorf("write outbound message: %w", err)
	}
	return nil
}

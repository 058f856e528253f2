// Package urgency runs the VIP urgency protocol: a menu-driven dialog that
// ends in a registered urgency record, optionally backed by a calendar
// artifact, plus the near-duplicate detector guarding the urgency log.
package urgency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dwizi/wa-assistant/internal/store"
)

type State string

const (
	StateNone               State = ""
	StateAwaitingOption     State = "esperando_opcion"
	StateAwaitingDetail     State = "esperando_detalle"
	StateConfirmingDetail   State = "confirmando_detalle"
	StateAwaitingEventSetup State = "esperando_event_config"
	StateClosed             State = "cerrada"
)

func (s State) Active() bool {
	switch s {
	case StateAwaitingOption, StateAwaitingDetail, StateConfirmingDetail, StateAwaitingEventSetup:
		return true
	default:
		return false
	}
}

// midFlow states accept an explicit option switch.
func (s State) midFlow() bool {
	return s == StateAwaitingDetail || s == StateConfirmingDetail || s == StateAwaitingEventSetup
}

type Kind string

const (
	KindEvento       Kind = "evento"
	KindNota         Kind = "nota"
	KindRecordatorio Kind = "recordatorio"
	KindInmediata    Kind = "inmediata"
	KindGeneric      Kind = "generic"
)

type Session struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	State     State     `json:"state"`
	Kind      Kind      `json:"kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const SessionPrefix = "urgency_session:"

func SessionKey(phone string) string {
	return SessionPrefix + strings.TrimSpace(phone)
}

// ActiveSession returns the contact's session when it is in a non-terminal state.
func ActiveSession(ctx context.Context, docs store.DocumentStore, phone string) (Session, bool, error) {
	session, found, err := store.GetJSON[Session](ctx, docs, SessionKey(phone))
	if err != nil {
		return Session{}, false, fmt.Errorf("load urgency session: %w", err)
	}
	if !found || !session.State.Active() {
		return Session{}, false, nil
	}
	return session, true, nil
}

// CountActive counts active sessions across all contacts.
func CountActive(ctx context.Context, docs store.DocumentStore) (int, error) {
	documents, err := docs.List(ctx, SessionPrefix)
	if err != nil {
		return 0, fmt.Errorf("list urgency sessions: %w", err)
	}
	count := 0
	for _, document := range documents {
		var session Session
		if err := json.Unmarshal(document.Body, &session); err != nil {
			continue
		}
		if session.State.Active() {
			count++
		}
	}
	return count, nil
}

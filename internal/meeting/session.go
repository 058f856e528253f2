// Package meeting runs the scheduling dialog offered to third-party contacts:
// topic, date, time, duration and mode are collected one message at a time,
// then a calendar artifact is produced on confirmation.
package meeting

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
	StateNone             State = ""
	StateAwaitingTopic    State = "awaiting_topic"
	StateAwaitingDate     State = "awaiting_date"
	StateAwaitingTime     State = "awaiting_time"
	StateAwaitingDuration State = "awaiting_duration"
	StateAwaitingMode     State = "awaiting_mode"
	StateConfirming       State = "confirming"
	StateClosed           State = "closed"
)

func (s State) Active() bool {
	switch s {
	case StateAwaitingTopic, StateAwaitingDate, StateAwaitingTime, StateAwaitingDuration, StateAwaitingMode, StateConfirming:
		return true
	default:
		return false
	}
}

type Session struct {
	ID           string    `json:"id"`
	Phone        string    `json:"phone"`
	State        State     `json:"state"`
	Topic        string    `json:"topic"`
	DateText     string    `json:"date_text"`
	TimeText     string    `json:"time_text"`
	DurationText string    `json:"duration_text"`
	ModeText     string    `json:"mode_text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const SessionPrefix = "meeting:"

func SessionKey(phone string) string {
	return SessionPrefix + strings.TrimSpace(phone)
}

func ActiveSession(ctx context.Context, docs store.DocumentStore, phone string) (Session, bool, error) {
	session, found, err := store.GetJSON[Session](ctx, docs, SessionKey(phone))
	if err != nil {
		return Session{}, false, fmt.Errorf("load meeting session: %w", err)
	}
	if !found || !session.State.Active() {
		return Session{}, false, nil
	}
	return session, true, nil
}

func CountActive(ctx context.Context, docs store.DocumentStore) (int, error) {
	documents, err := docs.List(ctx, SessionPrefix)
	if err != nil {
		return 0, fmt.Errorf("list meeting sessions: %w", err)
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

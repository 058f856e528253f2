// Package state holds the per-contact records, the assistant configuration
// singleton, and the metrics log on top of a store.DocumentStore.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/wa-assistant/internal/store"
	"github.com/dwizi/wa-assistant/internal/triage"
)

const (
	ConfigKey     = "assistant_config"
	MetricsKey    = "metrics"
	ContactPrefix = "contact:"

	maxContactMessages = 10
	maxMetricEvents    = 5000
)

func ContactKey(phone string) string {
	return ContactPrefix + strings.TrimSpace(phone)
}

type ContactMessage struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

type ContactStats struct {
	Inbound     int `json:"inbound"`
	AutoReplies int `json:"auto_replies"`
}

type Contact struct {
	Phone        string           `json:"phone"`
	Name         string           `json:"name"`
	Priority     triage.Priority  `json:"priority"`
	LastSeenAt   time.Time        `json:"last_seen_at"`
	LastIntent   triage.Intent    `json:"last_intent"`
	LastMessages []ContactMessage `json:"last_messages"`
	Tags         []string         `json:"tags"`
	Stats        ContactStats     `json:"stats"`
}

// MetricEvent kinds emitted by the router.
const (
	MetricInbound          = "inbound"
	MetricAutoReplyOffHour = "auto_reply_off_hours"
	MetricMeetingReply     = "meeting_flow_reply"
	MetricScriptedReply    = "scripted_reply"
	MetricUrgencyReply     = "urgency_flow_reply"
)

type MetricEvent struct {
	At       time.Time       `json:"at"`
	Kind     string          `json:"kind"`
	Phone    string          `json:"phone,omitempty"`
	Intent   triage.Intent   `json:"intent,omitempty"`
	Priority triage.Priority `json:"priority,omitempty"`
}

type metricsDocument struct {
	Events []MetricEvent `json:"events"`
}

type Store struct {
	docs   store.DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

func New(docs store.DocumentStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		docs:   docs,
		logger: logger.With("component", "state"),
		now:    time.Now,
	}
}

// SetClock replaces the time source; used by tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) Documents() store.DocumentStore {
	return s.docs
}

// RecordInbound creates the contact on first sight and appends text to its bounded history.
func (s *Store) RecordInbound(ctx context.Context, phone, text string, classification triage.Classification) (Contact, error) {
	phone = strings.TrimSpace(phone)
	now := s.now().UTC()
	contact, err := store.UpdateJSON(ctx, s.docs, ContactKey(phone), func(contact *Contact, exists bool) error {
		if !exists {
			*contact = newContact(phone)
		}
		normalizeContact(contact, phone)
		contact.LastSeenAt = now
		contact.LastIntent = classification.Intent
		contact.Priority = classification.Priority
		contact.Stats.Inbound++
		contact.LastMessages = append(contact.LastMessages, ContactMessage{At: now, Text: text})
		if len(contact.LastMessages) > maxContactMessages {
			contact.LastMessages = contact.LastMessages[len(contact.LastMessages)-maxContactMessages:]
		}
		return nil
	})
	if err != nil {
		return Contact{}, fmt.Errorf("record inbound for %s: %w", phone, err)
	}
	return contact, nil
}

func (s *Store) IncrementAutoReply(ctx context.Context, phone string) error {
	phone = strings.TrimSpace(phone)
	if _, err := store.UpdateJSON(ctx, s.docs, ContactKey(phone), func(contact *Contact, exists bool) error {
		if !exists {
			*contact = newContact(phone)
		}
		normalizeContact(contact, phone)
		contact.Stats.AutoReplies++
		return nil
	}); err != nil {
		return fmt.Errorf("increment auto reply for %s: %w", phone, err)
	}
	return nil
}

func (s *Store) Contact(ctx context.Context, phone string) (Contact, bool, error) {
	phone = strings.TrimSpace(phone)
	var contact Contact
	found, err := s.load(ctx, ContactKey(phone), &contact)
	if err != nil || !found {
		return Contact{}, false, err
	}
	normalizeContact(&contact, phone)
	return contact, true, nil
}

func (s *Store) ListContacts(ctx context.Context) ([]Contact, error) {
	documents, err := s.docs.List(ctx, ContactPrefix)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	contacts := make([]Contact, 0, len(documents))
	for _, document := range documents {
		phone := strings.TrimPrefix(document.Key, ContactPrefix)
		var contact Contact
		if err := json.Unmarshal(document.Body, &contact); err != nil {
			s.logger.Warn("malformed contact document, using defaults", "phone", phone, "error", err)
			contact = newContact(phone)
		}
		normalizeContact(&contact, phone)
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

// Config returns the assistant configuration, falling back to defaults when absent or malformed.
func (s *Store) Config(ctx context.Context) (AssistantConfig, error) {
	config := DefaultConfig()
	found, err := s.load(ctx, ConfigKey, &config)
	if err != nil {
		return AssistantConfig{}, err
	}
	if !found {
		return DefaultConfig(), nil
	}
	return config.normalized(), nil
}

func (s *Store) UpdateConfig(ctx context.Context, mutate func(config *AssistantConfig) error) (AssistantConfig, error) {
	config, err := store.UpdateJSON(ctx, s.docs, ConfigKey, func(config *AssistantConfig, exists bool) error {
		if !exists {
			*config = DefaultConfig()
		}
		*config = config.normalized()
		return mutate(config)
	})
	if err != nil {
		return AssistantConfig{}, fmt.Errorf("update assistant config: %w", err)
	}
	return config, nil
}

func (s *Store) AddMetric(ctx context.Context, event MetricEvent) error {
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	if _, err := store.UpdateJSON(ctx, s.docs, MetricsKey, func(doc *metricsDocument, exists bool) error {
		doc.Events = append(doc.Events, event)
		if len(doc.Events) > maxMetricEvents {
			doc.Events = doc.Events[len(doc.Events)-maxMetricEvents:]
		}
		return nil
	}); err != nil {
		return fmt.Errorf("add metric %s: %w", event.Kind, err)
	}
	return nil
}

// Metrics returns events at or after since, oldest first.
func (s *Store) Metrics(ctx context.Context, since time.Time) ([]MetricEvent, error) {
	var doc metricsDocument
	if _, err := s.load(ctx, MetricsKey, &doc); err != nil {
		return nil, err
	}
	events := []MetricEvent{}
	for _, event := range doc.Events {
		if event.At.Before(since) {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Store) load(ctx context.Context, key string, target any) (bool, error) {
	document, err := s.docs.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(document.Body, target); err != nil {
		s.logger.Warn("malformed document, using defaults", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func newContact(phone string) Contact {
	return Contact{
		Phone:        phone,
		Priority:     triage.PriorityNormal,
		LastMessages: []ContactMessage{},
		Tags:         []string{},
	}
}

func normalizeContact(contact *Contact, phone string) {
	if contact.Phone == "" {
		contact.Phone = phone
	}
	if priority, ok := triage.ParsePriority(string(contact.Priority)); ok {
		contact.Priority = priority
	} else {
		contact.Priority = triage.PriorityNormal
	}
	if contact.LastMessages == nil {
		contact.LastMessages = []ContactMessage{}
	}
	if contact.Tags == nil {
		contact.Tags = []string{}
	}
}

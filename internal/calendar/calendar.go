// Package calendar produces calendar artifacts for confirmed meetings and
// VIP events, and queues them for an external calendar sync worker.
package calendar

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidEvent = errors.New("invalid calendar event")

type Event struct {
	Title       string
	Start       time.Time
	Duration    time.Duration
	Description string
	Location    string
}

func (e Event) End() time.Time {
	return e.Start.Add(e.Duration)
}

// Creator turns an Event into an opaque artifact reference (a file path for ICSWriter).
type Creator interface {
	CreateEvent(ctx context.Context, event Event) (string, error)
}

type SyncEntry struct {
	CreatedAt       time.Time `json:"created_at"`
	Status          string    `json:"status"`
	Source          string    `json:"source"`
	Phone           string    `json:"phone"`
	Title           string    `json:"title"`
	StartISO        string    `json:"start_iso"`
	DurationMinutes int       `json:"duration_minutes"`
	Location        string    `json:"location,omitempty"`
	Description     string    `json:"description,omitempty"`
	ArtifactRef     string    `json:"artifact_ref"`
}

type SyncQueue interface {
	Enqueue(ctx context.Context, entry SyncEntry) error
}

// NewSyncEntry fills the payload fields derived from event.
func NewSyncEntry(source, phone string, event Event, ref string) SyncEntry {
	return SyncEntry{
		Status:          StatusPending,
		Source:          source,
		Phone:           phone,
		Title:           event.Title,
		StartISO:        event.Start.Format(time.RFC3339),
		DurationMinutes: int(event.Duration / time.Minute),
		Location:        event.Location,
		Description:     event.Description,
		ArtifactRef:     ref,
	}
}

package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/dwizi/wa-assistant/internal/store"
)

const (
	SyncQueueKey   = "calendar_sync_queue"
	StatusPending  = "pending"
	// MaxSyncEntries bounds the queue document; the oldest entries are dropped first.
	MaxSyncEntries = 500
)

type syncQueueDocument struct {
	Events []SyncEntry `json:"events"`
}

// DocumentQueue appends sync entries to a single document for an external worker to drain.
type DocumentQueue struct {
	docs  store.DocumentStore
	now   func() time.Time
	limit int
}

func NewDocumentQueue(docs store.DocumentStore) *DocumentQueue {
	return &DocumentQueue{docs: docs, now: time.Now, limit: MaxSyncEntries}
}

func (q *DocumentQueue) Enqueue(ctx context.Context, entry SyncEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = q.now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if _, err := store.UpdateJSON(ctx, q.docs, SyncQueueKey, func(doc *syncQueueDocument, exists bool) error {
		doc.Events = append(doc.Events, entry)
		if q.limit > 0 && len(doc.Events) > q.limit {
			doc.Events = doc.Events[len(doc.Events)-q.limit:]
		}
		return nil
	}); err != nil {
		return fmt.Errorf("enqueue calendar sync: %w", err)
	}
	return nil
}

// Pending lists entries still waiting for the sync worker.
func (q *DocumentQueue) Pending(ctx context.Context) ([]SyncEntry, error) {
	doc, _, err := store.GetJSON[syncQueueDocument](ctx, q.docs, SyncQueueKey)
	if err != nil {
		return nil, fmt.Errorf("load calendar sync queue: %w", err)
	}
	pending := []SyncEntry{}
	for _, entry := range doc.Events {
		if entry.Status == StatusPending {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

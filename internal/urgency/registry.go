package urgency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/wa-assistant/internal/store"
)

const (
	LogKey        = "urgency_log"
	maxLogRecords = 500
	SourceChat    = "whatsapp"
)

var ErrRecordNotFound = errors.New("urgency record not found")

type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func SeverityForKind(kind Kind) Severity {
	switch kind {
	case KindInmediata:
		return SeverityCritical
	case KindEvento, KindRecordatorio:
		return SeverityHigh
	default:
		return SeverityNormal
	}
}

type Record struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	Kind        Kind      `json:"kind"`
	Severity    Severity  `json:"severity"`
	SeenByOwner bool      `json:"seen_by_owner"`
	IsDuplicate bool      `json:"is_duplicate"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
}

type logDocument struct {
	Records []Record `json:"records"`
}

// Registry owns the append-only urgency log.
type Registry struct {
	docs       store.DocumentStore
	similarity Similarity
	now        func() time.Time
}

func NewRegistry(docs store.DocumentStore, similarity Similarity) *Registry {
	if similarity == nil {
		similarity = SequenceRatio{}
	}
	return &Registry{docs: docs, similarity: similarity, now: time.Now}
}

func (r *Registry) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Register appends a record unless a recent near-duplicate exists, in which
// case the existing record is returned flagged as a duplicate and nothing is written.
func (r *Registry) Register(ctx context.Context, sender, text, source string, kind Kind) (Record, error) {
	if strings.TrimSpace(source) == "" {
		source = SourceChat
	}
	now := r.now().UTC()
	var registered Record
	_, err := store.UpdateJSON(ctx, r.docs, LogKey, func(doc *logDocument, exists bool) error {
		if original, found := FindRecentDuplicate(doc.Records, sender, text, kind, now, r.similarity); found {
			registered = original
			registered.IsDuplicate = true
			registered.DuplicateOf = original.ID
			return store.ErrSkipWrite
		}
		registered = Record{
			ID:        newRecordID(),
			Sender:    sender,
			Text:      text,
			CreatedAt: now,
			Source:    source,
			Kind:      kind,
			Severity:  SeverityForKind(kind),
		}
		doc.Records = append(doc.Records, registered)
		if len(doc.Records) > maxLogRecords {
			doc.Records = doc.Records[len(doc.Records)-maxLogRecords:]
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("register urgency: %w", err)
	}
	return registered, nil
}

// Unseen returns up to limit records the owner has not acknowledged, newest first.
func (r *Registry) Unseen(ctx context.Context, limit int) ([]Record, error) {
	doc, _, err := store.GetJSON[logDocument](ctx, r.docs, LogKey)
	if err != nil {
		return nil, fmt.Errorf("load urgency log: %w", err)
	}
	records := []Record{}
	for i := len(doc.Records) - 1; i >= 0; i-- {
		if doc.Records[i].SeenByOwner {
			continue
		}
		records = append(records, doc.Records[i])
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

// MarkSeen flips the seen-by-owner flag, the only mutation a record allows.
func (r *Registry) MarkSeen(ctx context.Context, id string) (Record, error) {
	id = strings.TrimSpace(id)
	var marked Record
	_, err := store.UpdateJSON(ctx, r.docs, LogKey, func(doc *logDocument, exists bool) error {
		for i := range doc.Records {
			if doc.Records[i].ID == id {
				doc.Records[i].SeenByOwner = true
				marked = doc.Records[i]
				return nil
			}
		}
		return ErrRecordNotFound
	})
	if err != nil {
		return Record{}, err
	}
	return marked, nil
}

func newRecordID() string {
	return "urg-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// OwnerAlert renders the message the owner receives for a registered record.
func OwnerAlert(record Record) string {
	header := "🚨 URGENCIA VIP"
	if record.Kind != "" && record.Kind != KindGeneric {
		header += " (" + string(record.Kind) + ")"
	}
	if record.Severity == SeverityCritical {
		header += " [CRITICA]"
	}
	if record.IsDuplicate {
		header += " [DUPLICADA]"
	}
	return header + "\n" +
		"Hora (UTC): " + record.CreatedAt.UTC().Format(time.RFC3339) + "\n" +
		"Severidad: " + string(record.Severity) + "\n" +
		"Texto: " + record.Text + "\n\n" +
		"Por favor revisa el chat con el VIP ahora mismo."
}

// Package transcript keeps a per-contact markdown record of every message
// the assistant received or sent.
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

type Entry struct {
	Phone      string
	Direction  string
	Text       string
	Attachment string
	Policy     string
	At         time.Time
}

var pathSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._+-]+`)

// Log appends entries to <dir>/<phone>.md. A Log with an empty dir is a no-op.
type Log struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Log {
	return &Log{dir: strings.TrimSpace(dir), now: time.Now}
}

func (l *Log) Enabled() bool {
	return l != nil && l.dir != ""
}

func (l *Log) Append(entry Entry) error {
	if !l.Enabled() {
		return nil
	}
	text := strings.TrimSpace(entry.Text)
	if text == "" {
		return nil
	}
	phone := sanitizeSegment(entry.Phone)
	if phone == "" {
		phone = "unknown"
	}
	at := entry.At.UTC()
	if entry.At.IsZero() {
		at = l.now().UTC()
	}
	direction := strings.ToLower(strings.TrimSpace(entry.Direction))
	if direction == "" {
		direction = DirectionInbound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(l.dir, phone+".md")

	header := ""
	if _, err := os.Stat(path); os.IsNotExist(err) {
		header = fmt.Sprintf("# Conversación\n\n- phone: `%s`\n\n", strings.TrimSpace(entry.Phone))
	}

	var body strings.Builder
	fmt.Fprintf(&body, "## %s `%s`\n", at.Format(time.RFC3339), strings.ToUpper(direction))
	if policy := strings.TrimSpace(entry.Policy); policy != "" {
		fmt.Fprintf(&body, "- policy: `%s`\n", policy)
	}
	if attachment := strings.TrimSpace(entry.Attachment); attachment != "" {
		fmt.Fprintf(&body, "- attachment: `%s`\n", attachment)
	}
	fmt.Fprintf(&body, "\n%s\n\n", text)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(header + body.String()); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func sanitizeSegment(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = pathSanitizer.ReplaceAllString(trimmed, "-")
	return strings.Trim(trimmed, "-.")
}

type Sender interface {
	Send(ctx context.Context, target, message string) error
	SendWithAttachment(ctx context.Context, target, message, artifactRef string) error
}

// RecordingSender records each successful send before returning.
type RecordingSender struct {
	next Sender
	log  *Log
}

func NewRecordingSender(next Sender, log *Log) *RecordingSender {
	return &RecordingSender{next: next, log: log}
}

func (s *RecordingSender) Send(ctx context.Context, target, message string) error {
	if err := s.next.Send(ctx, target, message); err != nil {
		return err
	}
	return s.log.Append(Entry{Phone: target, Direction: DirectionOutbound, Text: message})
}

func (s *RecordingSender) SendWithAttachment(ctx context.Context, target, message, artifactRef string) error {
	if err := s.next.SendWithAttachment(ctx, target, message, artifactRef); err != nil {
		return err
	}
	return s.log.Append(Entry{Phone: target, Direction: DirectionOutbound, Text: message, Attachment: artifactRef})
}

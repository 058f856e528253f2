package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/wa-assistant/internal/orchestrator"
)

const maxInboundLineBytes = 1 << 20

// inboundMessage is one line on the inbound stream. "from" is accepted as
// an alias of "sender" for transports that use that name.
type inboundMessage struct {
	Sender string `json:"sender"`
	From   string `json:"from"`
	Text   string `json:"text"`
}

func parseInbound(line []byte) (orchestrator.Job, error) {
	var message inboundMessage
	if err := json.Unmarshal(line, &message); err != nil {
		return orchestrator.Job{}, fmt.Errorf("decode inbound message: %w", err)
	}
	sender := strings.TrimSpace(message.Sender)
	if sender == "" {
		sender = strings.TrimSpace(message.From)
	}
	if sender == "" {
		return orchestrator.Job{}, errors.New("decode inbound message: sender is required")
	}
	return orchestrator.Job{Sender: sender, Text: message.Text}, nil
}

// readInbound scans on its own goroutine so a blocked read never holds up
// shutdown; it returns nil at EOF or when ctx ends.
func (r *Runtime) readInbound(ctx context.Context, input io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, 64*1024), maxInboundLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read inbound stream: %w", err)
				}
				return nil
			}
			r.acceptLine(line)
		}
	}
}

func (r *Runtime) acceptLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	job, err := parseInbound([]byte(line))
	if err != nil {
		r.logger.Warn("inbound line skipped", "error", err)
		return
	}
	if r.inbound.seen(job.Sender, job.Text, time.Now()) {
		r.logger.Info("duplicate inbound ignored", "phone", job.Sender)
		return
	}
	if _, err := r.engine.Enqueue(job); err != nil {
		r.logger.Error("inbound message dropped", "phone", job.Sender, "error", err)
	}
}

// inboundDedup drops identical (sender, text) pairs seen within window, which
// transports emit when they replay a message.
type inboundDedup struct {
	window time.Duration
	mu     sync.Mutex
	recent map[string]time.Time
}

func newInboundDedup(window time.Duration) *inboundDedup {
	return &inboundDedup{window: window, recent: map[string]time.Time{}}
}

func (d *inboundDedup) seen(sender, text string, now time.Time) bool {
	if d == nil || d.window <= 0 {
		return false
	}
	key := sender + "\x00" + strings.TrimSpace(text)
	d.mu.Lock()
	defer d.mu.Unlock()
	for existing, at := range d.recent {
		if now.Sub(at) > d.window {
			delete(d.recent, existing)
		}
	}
	if at, ok := d.recent[key]; ok && now.Sub(at) <= d.window {
		return true
	}
	d.recent[key] = now
	return false
}

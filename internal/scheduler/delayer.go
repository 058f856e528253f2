// Package scheduler owns the process timers: delayed outbound messages and
// the cron-driven owner digest.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMinDelay = time.Second
	DefaultMaxDelay = 15 * time.Minute
	sendTimeout     = 30 * time.Second
)

type Sender interface {
	Send(ctx context.Context, target, message string) error
}

type pendingTimer struct {
	id    uint64
	timer *time.Timer
}

// Delayer sends messages after a delay, each on its own timer. Timers are
// grouped by key so a caller can cancel everything scheduled under it.
type Delayer struct {
	sender   Sender
	minDelay time.Duration
	maxDelay time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	nextID uint64
	timers map[string][]pendingTimer
	closed bool
	sends  sync.WaitGroup
}

func NewDelayer(sender Sender, maxDelay time.Duration, logger *slog.Logger) *Delayer {
	if maxDelay < DefaultMinDelay {
		maxDelay = DefaultMaxDelay
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Delayer{
		sender:   sender,
		minDelay: DefaultMinDelay,
		maxDelay: maxDelay,
		logger:   logger.With("component", "delayer"),
		timers:   map[string][]pendingTimer{},
	}
}

// Clamp bounds delay to the configured window.
func (d *Delayer) Clamp(delay time.Duration) time.Duration {
	if delay < d.minDelay {
		return d.minDelay
	}
	if delay > d.maxDelay {
		return d.maxDelay
	}
	return delay
}

// Schedule never blocks; it returns the effective (clamped) delay, or zero
// when nothing was scheduled.
func (d *Delayer) Schedule(key, target, message string, delay time.Duration) time.Duration {
	target = strings.TrimSpace(target)
	if target == "" || strings.TrimSpace(message) == "" || d.sender == nil {
		return 0
	}
	effective := d.Clamp(delay)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	d.nextID++
	id := d.nextID
	timer := time.AfterFunc(effective, func() {
		if !d.release(key, id) {
			return
		}
		defer d.sends.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := d.sender.Send(ctx, target, message); err != nil {
			d.logger.Error("delayed send failed", "key", key, "target", target, "error", err)
			return
		}
		d.logger.Info("delayed message sent", "key", key, "target", target)
	})
	d.timers[key] = append(d.timers[key], pendingTimer{id: id, timer: timer})
	d.logger.Info("delayed message scheduled", "key", key, "target", target, "delay", effective.String())
	return effective
}

// release removes a fired timer and reports whether it should still send.
func (d *Delayer) release(key string, id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.timers[key]
	for index, item := range pending {
		if item.id != id {
			continue
		}
		pending = append(pending[:index], pending[index+1:]...)
		if len(pending) == 0 {
			delete(d.timers, key)
		} else {
			d.timers[key] = pending
		}
		d.sends.Add(1)
		return true
	}
	return false
}

// CancelKey stops every pending timer scheduled under key and returns how many were stopped.
func (d *Delayer) CancelKey(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	stopped := 0
	for _, item := range d.timers[key] {
		if item.timer.Stop() {
			stopped++
		}
	}
	delete(d.timers, key)
	return stopped
}

func (d *Delayer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, items := range d.timers {
		count += len(items)
	}
	return count
}

// Start blocks until ctx ends, then stops every pending timer and waits for
// sends already in flight.
func (d *Delayer) Start(ctx context.Context) error {
	<-ctx.Done()
	d.mu.Lock()
	d.closed = true
	dropped := 0
	for key, items := range d.timers {
		for _, item := range items {
			if item.timer.Stop() {
				dropped++
			}
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()
	if dropped > 0 {
		d.logger.Warn("pending delayed messages dropped on shutdown", "count", dropped)
	}
	d.sends.Wait()
	return nil
}

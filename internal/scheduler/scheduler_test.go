package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{done: make(chan struct{}, 10)}
}

func (r *recordingSender) Send(ctx context.Context, target, message string) error {
	r.mu.Lock()
	r.sent = append(r.sent, target+": "+message)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClampBoundsDelay(t *testing.T) {
	delayer := NewDelayer(newRecordingSender(), 0, testLogger())
	cases := map[time.Duration]time.Duration{
		0:                time.Second,
		-5 * time.Second: time.Second,
		2 * time.Minute:  2 * time.Minute,
		24 * time.Hour:   15 * time.Minute,
	}
	for input, want := range cases {
		if got := delayer.Clamp(input); got != want {
			t.Fatalf("clamp %s: expected %s, got %s", input, want, got)
		}
	}
}

func TestScheduleSendsAfterDelay(t *testing.T) {
	sender := newRecordingSender()
	delayer := NewDelayer(sender, time.Minute, testLogger())
	delayer.minDelay = 10 * time.Millisecond

	effective := delayer.Schedule("urgency_retry:+1", "+1", "reintento", 0)
	if effective != 10*time.Millisecond {
		t.Fatalf("expected clamped delay, got %s", effective)
	}
	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed message was not sent")
	}
	if got := sender.messages(); len(got) != 1 || got[0] != "+1: reintento" {
		t.Fatalf("unexpected sends %v", got)
	}
	if delayer.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", delayer.Pending())
	}
}

func TestCancelKeyStopsPendingTimers(t *testing.T) {
	sender := newRecordingSender()
	delayer := NewDelayer(sender, time.Minute, testLogger())

	delayer.Schedule("meeting_followup:+2", "+2", "seguimiento", 30*time.Second)
	delayer.Schedule("meeting_followup:+2", "+2", "seguimiento 2", 30*time.Second)
	delayer.Schedule("other", "+3", "otro", 30*time.Second)

	if stopped := delayer.CancelKey("meeting_followup:+2"); stopped != 2 {
		t.Fatalf("expected 2 stopped timers, got %d", stopped)
	}
	if delayer.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", delayer.Pending())
	}
	if len(sender.messages()) != 0 {
		t.Fatal("cancelled timers must not send")
	}
}

func TestScheduleIgnoresEmptyTargets(t *testing.T) {
	delayer := NewDelayer(newRecordingSender(), time.Minute, testLogger())
	if got := delayer.Schedule("k", " ", "hola", time.Second); got != 0 {
		t.Fatalf("expected nothing scheduled, got %s", got)
	}
	if got := delayer.Schedule("k", "+1", "", time.Second); got != 0 {
		t.Fatalf("expected nothing scheduled, got %s", got)
	}
}

func TestStartDropsPendingOnShutdown(t *testing.T) {
	delayer := NewDelayer(newRecordingSender(), time.Minute, testLogger())
	delayer.Schedule("k", "+1", "hola", 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := delayer.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if delayer.Pending() != 0 {
		t.Fatalf("expected timers cleared, got %d", delayer.Pending())
	}
	if got := delayer.Schedule("k", "+1", "hola", time.Second); got != 0 {
		t.Fatal("expected schedule after shutdown to be ignored")
	}
}

type fakeReporter struct {
	at  time.Time
	err error
}

func (f *fakeReporter) DailyReport(ctx context.Context, now time.Time) (string, error) {
	f.at = now
	if f.err != nil {
		return "", f.err
	}
	return "[REPORTE DIARIO]", nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) NotifyOwner(ctx context.Context, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func TestDigestRunOnce(t *testing.T) {
	reporter := &fakeReporter{}
	notifier := &fakeNotifier{}
	digest, err := NewDigest("", time.UTC, reporter, notifier, testLogger())
	if err != nil {
		t.Fatalf("new digest: %v", err)
	}
	digest.now = func() time.Time { return time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC) }

	if err := digest.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(notifier.messages) != 1 || !strings.HasPrefix(notifier.messages[0], "[REPORTE DIARIO]") {
		t.Fatalf("unexpected notifications %v", notifier.messages)
	}

	reporter.err = errors.New("store down")
	if err := digest.RunOnce(context.Background()); err == nil {
		t.Fatal("expected report error")
	}
}

func TestDigestNextHonorsLocation(t *testing.T) {
	location := time.FixedZone("CLT", -3*60*60)
	digest, err := NewDigest("0 21 * * *", location, &fakeReporter{}, &fakeNotifier{}, testLogger())
	if err != nil {
		t.Fatalf("new digest: %v", err)
	}
	next := digest.Next(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	if want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestDigestRejectsInvalidSchedule(t *testing.T) {
	if _, err := NewDigest("every day", time.UTC, &fakeReporter{}, &fakeNotifier{}, testLogger()); err == nil {
		t.Fatal("expected parse error")
	}
}

package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultDigestSchedule = "0 21 * * *"

var digestCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Reporter interface {
	DailyReport(ctx context.Context, now time.Time) (string, error)
}

type Notifier interface {
	NotifyOwner(ctx context.Context, message string) error
}

// Digest sends the daily report to the owner on a cron schedule.
type Digest struct {
	schedule cron.Schedule
	expr     string
	location *time.Location
	reporter Reporter
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewDigest(expr string, location *time.Location, reporter Reporter, notifier Notifier, logger *slog.Logger) (*Digest, error) {
	expr = strings.Join(strings.Fields(expr), " ")
	if expr == "" {
		expr = DefaultDigestSchedule
	}
	schedule, err := digestCronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse digest schedule: %w", err)
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Digest{
		schedule: schedule,
		expr:     expr,
		location: location,
		reporter: reporter,
		notifier: notifier,
		logger:   logger.With("component", "digest"),
		now:      time.Now,
	}, nil
}

// Next returns the first run strictly after from, in UTC.
func (d *Digest) Next(from time.Time) time.Time {
	return d.schedule.Next(from.In(d.location)).UTC()
}

// RunOnce builds the report for now and sends it to the owner.
func (d *Digest) RunOnce(ctx context.Context) error {
	report, err := d.reporter.DailyReport(ctx, d.now().In(d.location))
	if err != nil {
		return fmt.Errorf("build daily report: %w", err)
	}
	if err := d.notifier.NotifyOwner(ctx, report); err != nil {
		return fmt.Errorf("send daily report: %w", err)
	}
	return nil
}

func (d *Digest) Start(ctx context.Context) error {
	runner := cron.New(cron.WithLocation(d.location), cron.WithParser(digestCronParser))
	if _, err := runner.AddFunc(d.expr, func() {
		if err := d.RunOnce(ctx); err != nil {
			d.logger.Error("daily digest failed", "error", err)
			return
		}
		d.logger.Info("daily digest sent")
	}); err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	runner.Start()
	d.logger.Info("digest scheduler started", "schedule", d.expr, "next_run", d.Next(d.now()).Format(time.RFC3339))

	<-ctx.Done()
	<-runner.Stop().Done()
	d.logger.Info("digest scheduler stopped")
	return nil
}

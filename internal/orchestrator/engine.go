// Package orchestrator runs inbound message jobs on a bounded worker pool.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueFull = errors.New("job queue is full")

const queueDepthPerWorker = 50

type Job struct {
	ID         string
	Sender     string
	Text       string
	ReceivedAt time.Time
}

type Handler interface {
	HandleJob(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) HandleJob(ctx context.Context, job Job) error {
	return f(ctx, job)
}

type Engine struct {
	maxConcurrency int
	jobs           chan Job
	handler        Handler
	logger         *slog.Logger
	startOnce      sync.Once
	inflight       sync.WaitGroup
}

func New(maxConcurrency int, handler Handler, logger *slog.Logger) *Engine {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		maxConcurrency: maxConcurrency,
		jobs:           make(chan Job, maxConcurrency*queueDepthPerWorker),
		handler:        handler,
		logger:         logger.With("component", "orchestrator"),
	}
}

// Start runs the workers until ctx is cancelled. Jobs still queued at that
// point are dropped.
func (e *Engine) Start(ctx context.Context) error {
	var workers sync.WaitGroup
	e.startOnce.Do(func() {
		for index := 0; index < e.maxConcurrency; index++ {
			workers.Add(1)
			go func(workerID int) {
				defer workers.Done()
				e.worker(ctx, workerID)
			}(index + 1)
		}
	})

	<-ctx.Done()
	workers.Wait()
	return nil
}

func (e *Engine) Enqueue(job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now().UTC()
	}
	job.Sender = strings.TrimSpace(job.Sender)

	e.inflight.Add(1)
	select {
	case e.jobs <- job:
		e.logger.Debug("job queued", "job_id", job.ID, "phone", job.Sender)
		return job, nil
	default:
		e.inflight.Done()
		return Job{}, ErrQueueFull
	}
}

// Drain blocks until every accepted job has been handled or ctx ends.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) worker(ctx context.Context, workerID int) {
	e.logger.Debug("worker started", "worker_id", workerID)
	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("worker stopped", "worker_id", workerID)
			return
		case job := <-e.jobs:
			e.processJob(ctx, workerID, job)
		}
	}
}

func (e *Engine) processJob(ctx context.Context, workerID int, job Job) {
	defer e.inflight.Done()
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("job panicked", "worker_id", workerID, "job_id", job.ID, "panic", recovered)
		}
	}()
	if e.handler == nil {
		return
	}
	started := time.Now()
	if err := e.handler.HandleJob(ctx, job); err != nil {
		e.logger.Error("job failed", "worker_id", workerID, "job_id", job.ID, "phone", job.Sender, "error", err)
		return
	}
	e.logger.Debug("job completed", "worker_id", workerID, "job_id", job.ID, "duration", time.Since(started).String())
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/queue"
)

// maxBackoff caps the delay between attempts of one job.
const maxBackoff = time.Hour

// Handler runs one job. A nil error completes the job, a Deferred error
// requeues it without spending an attempt, and anything else is retried
// until the job runs out of attempts.
type Handler interface {
	Handle(ctx context.Context, eventID string) error
}

// Deferred is implemented by handler errors that ask for the job to run
// again later without spending an attempt.
type Deferred interface {
	error
	DeferUntil() time.Time
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, eventID string) error

func (f HandlerFunc) Handle(ctx context.Context, eventID string) error { return f(ctx, eventID) }

// JobQueue is the subset of queue.Queue the dispatcher drives.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, jobID string, status queue.Status, lastError *string) error
	Retry(ctx context.Context, jobID string, attempt int, nextRetryAt time.Time, lastError string) error
}

// Options tune the dispatch loop.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	BackoffBase  time.Duration
}

// Dispatcher dequeues relay jobs and runs them through the handler.
type Dispatcher struct {
	queue   JobQueue
	handler Handler
	hub     *events.Hub
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new Dispatcher. hub may be nil.
func New(q JobQueue, handler Handler, hub *events.Hub, opts Options) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 10 * time.Second
	}
	return &Dispatcher{
		queue:   q,
		handler: handler,
		hub:     hub,
		opts:    opts,
		logger:  log.WithComponent("dispatch"),
		now:     time.Now,
	}
}

// Start runs the main dispatch loop. Jobs run one at a time; when a job was
// found the next poll happens immediately so a backlog drains without waiting
// a full interval per job. Blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("dispatch loop started", "poll_interval", d.opts.PollInterval.String())
	defer d.logger.Info("dispatch loop stopped")

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for ctx.Err() == nil {
				ran, err := d.processNextJob(ctx)
				if err != nil {
					// Keep the loop alive on individual job errors.
					d.logger.Error("failed to process job", "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// processNextJob dequeues and runs one job. It reports whether a job was found.
func (d *Dispatcher) processNextJob(ctx context.Context) (bool, error) {
	job, err := d.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}
	d.executeJob(ctx, job)
	return true, nil
}

func (d *Dispatcher) executeJob(ctx context.Context, job *queue.Job) {
	jobLogger := log.WithJob(job.ID).With("kind", job.Kind, "event_id", job.EventID)
	jobLogger.Debug("executing job", "attempt", job.Attempt, "max_attempts", job.MaxAttempts)

	if job.Kind != queue.KindRelay {
		errMsg := fmt.Sprintf("unknown job kind %q", job.Kind)
		jobLogger.Error(errMsg)
		d.completeJob(ctx, job, queue.StatusDead, &errMsg)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	err := d.handler.Handle(runCtx, job.EventID)
	cancel()

	if err == nil {
		d.completeJob(ctx, job, queue.StatusSucceeded, nil)
		return
	}

	var deferred Deferred
	if errors.As(err, &deferred) {
		d.deferJob(ctx, jobLogger, job, deferred)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("handler timed out after %v: %w", d.opts.Timeout, err)
	}
	errMsg := err.Error()

	if job.Attempt >= job.MaxAttempts {
		jobLogger.Error("job failed permanently", "attempt", job.Attempt, "error", err)
		d.completeJob(ctx, job, queue.StatusDead, &errMsg)
		d.hub.Publish(events.TypeRelayDead, map[string]any{
			"job_id":   job.ID,
			"event_id": job.EventID,
			"attempts": job.Attempt,
			"error":    errMsg,
		})
		return
	}

	delay := Backoff(d.opts.BackoffBase, job.Attempt)
	next := d.now().Add(delay)
	jobLogger.Warn("job failed, scheduling retry",
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"retry_in", delay.String(),
		"error", err,
	)
	if err := d.queue.Retry(ctx, job.ID, job.Attempt+1, next, errMsg); err != nil {
		jobLogger.Error("failed to schedule retry", "error", err)
	}
}

// deferJob requeues job for the handler's requested time, keeping its attempt
// count.
func (d *Dispatcher) deferJob(ctx context.Context, jobLogger *slog.Logger, job *queue.Job, deferred Deferred) {
	until := deferred.DeferUntil()
	if now := d.now(); until.Before(now) {
		until = now
	}
	jobLogger.Debug("job deferred", "until", until, "reason", deferred.Error())
	if err := d.queue.Retry(ctx, job.ID, job.Attempt, until, ""); err != nil {
		jobLogger.Error("failed to defer job", "error", err)
	}
}

func (d *Dispatcher) completeJob(ctx context.Context, job *queue.Job, status queue.Status, lastError *string) {
	if err := d.queue.Complete(ctx, job.ID, status, lastError); err != nil {
		d.logger.Error("failed to complete job", "job_id", job.ID, "status", status, "error", err)
		return
	}
	d.logger.Debug("job completed", "job_id", job.ID, "status", status)
}

// Backoff returns base * 2^(attempt-1), capped at one hour.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/queue"
)

// Scheduler recovers relay jobs orphaned by a crash and periodically prunes
// job logs and expired delivery claims.
type Scheduler struct {
	cfg    *config.Config
	queue  QueueService
	claims ClaimPruner
	events *events.Hub
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new Scheduler instance. claims may be nil.
func New(cfg *config.Config, q QueueService, claims ClaimPruner, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		cfg:    cfg,
		queue:  q,
		claims: claims,
		events: hub,
		logger: logger.With("component", "scheduler"),
		stopCh: make(chan struct{}),
	}
}

// Start runs crash recovery, then begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler")

	if err := s.recoverOrphanedJobs(ctx); err != nil {
		return fmt.Errorf("scheduler crash recovery failed: %w", err)
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)

	interval := s.cfg.Service.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Debug("Scheduler context cancelled, stopping tick loop")
			return
		}
	}
}

// tick performs a single housekeeping pass.
func (s *Scheduler) tick(ctx context.Context) {
	s.logger.Debug("Scheduler tick")

	if s.cfg.Service.JobLogRetention > 0 {
		if err := s.queue.PruneJobLogs(ctx, s.cfg.Service.JobLogRetention); err != nil {
			s.logger.Error("Failed to prune job logs", "error", err)
		}
	}

	if s.claims != nil && s.cfg.Service.DedupeTTL > 0 {
		n, err := s.claims.PruneClaims(ctx, s.cfg.Service.DedupeTTL)
		if err != nil {
			s.logger.Error("Failed to prune delivery claims", "error", err)
		} else if n > 0 {
			s.logger.Info("Pruned expired delivery claims", "count", n)
		}
	}
}

// recoverOrphanedJobs requeues or buries jobs left "running" by a previous process.
func (s *Scheduler) recoverOrphanedJobs(ctx context.Context) error {
	s.logger.Info("Performing crash recovery for orphaned jobs")

	runningJobs, err := s.queue.FindJobsByStatus(ctx, queue.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to find running jobs for recovery: %w", err)
	}

	if len(runningJobs) == 0 {
		s.logger.Info("No orphaned jobs found.")
		return nil
	}

	s.logger.Warn("Found orphaned jobs, attempting recovery", "count", len(runningJobs))

	for _, job := range runningJobs {
		job.Attempt++

		var (
			newStatus    queue.Status
			lastErrorMsg string
		)
		if job.Attempt <= job.MaxAttempts {
			newStatus = queue.StatusQueued
			s.logger.Warn(
				"Re-queueing orphaned job",
				"job_id", job.ID,
				"event_id", job.EventID,
				"new_attempt", job.Attempt,
				"status", newStatus,
			)
		} else {
			newStatus = queue.StatusDead
			lastErrorMsg = fmt.Sprintf("Job marked dead during crash recovery: max attempts (%d) reached", job.MaxAttempts)
			s.logger.Error(
				"Marking orphaned job as dead (max attempts reached)",
				"job_id", job.ID,
				"event_id", job.EventID,
				"final_attempt", job.Attempt,
				"status", newStatus,
				"error", lastErrorMsg,
			)
		}

		if err := s.queue.UpdateJobForRecovery(ctx, job.ID, newStatus, job.Attempt, nil, lastErrorMsg); err != nil {
			s.logger.Error(
				"Failed to update orphaned job during recovery",
				"job_id", job.ID,
				"error", err,
				"desired_status", newStatus,
				"desired_attempt", job.Attempt,
			)
			continue
		}
		if newStatus == queue.StatusDead {
			s.events.Publish(events.TypeRelayDead, map[string]any{
				"job_id":   job.ID,
				"event_id": job.EventID,
				"attempts": job.Attempt,
				"error":    lastErrorMsg,
			})
		}
	}

	return nil
}

package scheduler

import (
	"context"
	"time"

	"github.com/mattjoyce/courier/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/mattjoyce/courier/internal/scheduler QueueService,ClaimPruner

// QueueService defines the interface for queue operations used by the scheduler.
type QueueService interface {
	FindJobsByStatus(ctx context.Context, status queue.Status) ([]*queue.Job, error)
	UpdateJobForRecovery(ctx context.Context, jobID string, newStatus queue.Status, newAttempt int, nextRetryAt *time.Time, lastError string) error
	PruneJobLogs(ctx context.Context, retention time.Duration) error
}

// ClaimPruner expires delivery claims past the dedupe window.
type ClaimPruner interface {
	PruneClaims(ctx context.Context, olderThan time.Duration) (int64, error)
}

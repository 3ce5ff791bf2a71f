package queue

import (
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusDead      Status = "dead"
)

// KindRelay jobs invoke the relay trigger for one stored event.
const KindRelay = "relay"

type Job struct {
	ID          string
	Kind        string
	EventID     string
	Status      Status
	Attempt     int
	MaxAttempts int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	NextRetryAt *time.Time
	LastError   *string
}

type EnqueueRequest struct {
	Kind        string
	EventID     string
	MaxAttempts int
}

var ErrJobNotFound = errors.New("job not found")

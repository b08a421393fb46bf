// Package queue provides a durable, at-least-once job queue with a
// visibility-timeout claim model, backed either by an in-process memory
// store or Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status values a Job can hold.
const (
	StatusQueued  = "queued"
	StatusStarted = "started"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrEmpty is returned by Claim when no job is ready.
var ErrEmpty = errors.New("queue: no job ready")

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("queue: job not found")

// Job is one unit of work: a lifecycle job type plus a JSON payload
// (protocol/step ids, policy overrides, etc).
type Job struct {
	JobID       string          `json:"job_id"`
	JobType     string          `json:"job_type"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NextRunAt   time.Time       `json:"next_run_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// EnqueueInput carries the fields a caller supplies when submitting a job.
type EnqueueInput struct {
	JobType     string
	Queue       string // default "default"
	Payload     json.RawMessage
	MaxAttempts int           // default 3
	Delay       time.Duration // default 0, job becomes ready immediately
}

// Stats summarizes queue depth per status for operational visibility.
type Stats struct {
	Backend string         `json:"backend"`
	Queues  map[string]int `json:"queues"` // "queued", "started", "done", "failed"
}

// Queue is the durable job-queue contract. Implementations must give
// at-least-once delivery: a claimed job that is never acked or nacked
// becomes reclaimable once its visibility timeout elapses.
type Queue interface {
	// Enqueue submits a new job and returns it in StatusQueued.
	Enqueue(ctx context.Context, in EnqueueInput) (*Job, error)
	// Claim atomically hands out one ready job from queueName (or any queue
	// when queueName is empty) and marks it StatusStarted with a visibility
	// deadline of visibility from now. Returns ErrEmpty if nothing is ready.
	Claim(ctx context.Context, queueName string, visibility time.Duration) (*Job, error)
	// Complete marks a claimed job StatusDone with its result payload.
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	// Fail marks a claimed job StatusFailed, recording errMsg.
	Fail(ctx context.Context, jobID string, errMsg string) error
	// Requeue returns a claimed job to StatusQueued, ready again after delay.
	// Used both for cooperative retry and for visibility-timeout reclaim.
	Requeue(ctx context.Context, jobID string, delay time.Duration) error
	// Get fetches a job by id.
	Get(ctx context.Context, jobID string) (*Job, error)
	// List returns jobs optionally filtered by status, oldest first.
	List(ctx context.Context, status string) ([]*Job, error)
	// Stats reports queue depth by status.
	Stats(ctx context.Context) (*Stats, error)
	// ReapExpired requeues any started job whose visibility timeout has
	// elapsed. Returns the number of jobs reclaimed.
	ReapExpired(ctx context.Context) (int, error)
}

func newJob(in EnqueueInput) *Job {
	queueName := in.Queue
	if queueName == "" {
		queueName = "default"
	}
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	return &Job{
		JobID:       uuid.NewString(),
		JobType:     in.JobType,
		Queue:       queueName,
		Payload:     payload,
		Status:      StatusQueued,
		CreatedAt:   now,
		MaxAttempts: maxAttempts,
		NextRunAt:   now.Add(in.Delay),
	}
}

// BackoffDelay computes the exponential backoff delay for a retry attempt
// (1-indexed), clamped to maxDelay. attempt=1 returns base.
func BackoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

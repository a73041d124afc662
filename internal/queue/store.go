// Package queue is the job store and submission layer: a Redis-backed,
// priority-ordered multi-queue with delayed jobs, retry/backoff, repeatable
// registrations, and per-job state inspection.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

// ErrDuplicate is returned when a job ID (idempotency key) already exists.
var ErrDuplicate = errors.New("queue: duplicate job id")

// ErrNotFound is returned when a job ID is unknown to the store.
var ErrNotFound = errors.New("queue: job not found")

// Options control a single enqueue. Zero values fall back to the queue's
// defaults in the submission facade.
type Options struct {
	// Priority is the ordinal (lower = more urgent). Zero means "resolve
	// via the policy engine"; tier ordinals start at 1.
	Priority int
	Attempts int
	Backoff  domain.BackoffPolicy
	Delay    time.Duration
	// JobID doubles as the idempotency key. Empty means a random ID.
	JobID string
}

// RepeatableSpec is a recurring trigger registration. At most one
// registration exists per (pattern, job type) pair on a queue.
type RepeatableSpec struct {
	Pattern string          `json:"pattern"` // cron expression
	JobType string          `json:"jobType"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Key returns the registration identity within a queue.
func (s RepeatableSpec) Key() string { return s.Pattern + "~" + s.JobType }

// Store is the job store surface consumed by the facade, the scheduler,
// the worker pools and the metrics reporter.
type Store interface {
	Enqueue(ctx context.Context, queue, jobType string, payload json.RawMessage, opts Options) (*domain.Job, error)
	Dequeue(ctx context.Context, queue string, block time.Duration) (*domain.Job, error)
	Complete(ctx context.Context, job *domain.Job) error
	Fail(ctx context.Context, job *domain.Job, cause error) error
	// Release returns an active job to the waiting set without counting
	// the attempt (worker shutdown, not job failure).
	Release(ctx context.Context, job *domain.Job) error

	GetJob(ctx context.Context, id string) (*domain.Job, error)
	State(ctx context.Context, queue, id string) (domain.State, error)
	Remove(ctx context.Context, queue, id string) error
	ListByState(ctx context.Context, queue string, state domain.State, limit int) ([]*domain.Job, error)
	CountByTier(ctx context.Context, queue string, state domain.State) (map[domain.Tier]int, error)

	// MoveDue promotes delayed jobs whose ready time has passed.
	MoveDue(ctx context.Context, queue string, now time.Time, batch int64) (int, error)

	RegisterRepeatable(ctx context.Context, queue string, spec RepeatableSpec) error
	ListRepeatable(ctx context.Context, queue string) ([]RepeatableSpec, error)
	RemoveRepeatable(ctx context.Context, queue, pattern, jobType string) error
}

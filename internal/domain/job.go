package domain

import (
	"encoding/json"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Queue names. Every job lives on exactly one of these.
const (
	QueueSync        = "sync"
	QueueProcessing  = "processing"
	QueueMaintenance = "maintenance"
)

// Queues in a stable order, for iteration in reporters.
var Queues = []string{QueueSync, QueueProcessing, QueueMaintenance}

// Job types.
const (
	TypeSyncBand         = "sync-band"
	TypeSyncAllBands     = "sync-all-bands"
	TypeProcessVideo     = "process-video"
	TypePromoteVideos    = "promote-videos"
	TypeMatchVideos      = "match-videos-to-bands"
	TypeCleanupVideos    = "cleanup-videos"
	TypeUpdateStats      = "update-stats"
	TypeBackfillCreators = "backfill-creators"
	TypeBackfillBands    = "backfill-bands"
)

type Job struct {
	ID          string
	Queue       string
	Type        string
	Payload     json.RawMessage
	Priority    int
	Attempt     int
	MaxAttempts int
	Backoff     BackoffPolicy
	State       State
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// ReadyAt is set while the job sits in the delayed set.
	ReadyAt time.Time
	// LeaseExpiresAt is set while the job is active; a crashed worker's
	// job is requeued once the lease runs out.
	LeaseExpiresAt time.Time
}

type BackoffPolicy struct {
	Type  string        // "fixed" or "exponential"
	Delay time.Duration // base delay
}

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Next returns the delay applied after the given attempt failed (1-based).
func (b BackoffPolicy) Next(attempt int) time.Duration {
	if b.Delay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if b.Type == BackoffExponential {
		d := b.Delay
		for i := 1; i < attempt; i++ {
			d *= 2
			if d > 10*time.Minute {
				return 10 * time.Minute
			}
		}
		return d
	}
	return b.Delay
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/priority"
)

// queueDefaults are the per-queue retry/backoff defaults applied when the
// caller does not override them.
var queueDefaults = map[string]Options{
	domain.QueueSync: {
		Attempts: 3,
		Backoff:  domain.BackoffPolicy{Type: domain.BackoffExponential, Delay: 30 * time.Second},
	},
	domain.QueueProcessing: {
		Attempts: 2,
		Backoff:  domain.BackoffPolicy{Type: domain.BackoffExponential, Delay: 5 * time.Second},
	},
	domain.QueueMaintenance: {
		Attempts: 1,
		Backoff:  domain.BackoffPolicy{Type: domain.BackoffFixed, Delay: 30 * time.Second},
	},
}

// Service is the typed submission facade: it builds payloads, resolves
// priority through the policy engine and submits to the store with the
// queue's default retry/backoff.
type Service struct {
	store    Store
	resolver *priority.Resolver
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Store, resolver *priority.Resolver, log *zap.Logger) *Service {
	return &Service{store: store, resolver: resolver, log: log, now: time.Now}
}

// SubmitWithPriority submits a job to a known queue. Unknown queue names
// fail with a ConfigurationError; the job is never silently dropped. An
// explicit opts.Priority wins over the computed tier.
func (s *Service) SubmitWithPriority(ctx context.Context, queue, jobType string, payload any, opts *Options) (*domain.Job, error) {
	defaults, ok := queueDefaults[queue]
	if !ok {
		return nil, domain.NewConfigurationError("unknown queue %q for job type %q", queue, jobType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewConfigurationError("marshal %s payload: %v", jobType, err)
	}

	merged := defaults
	if opts != nil {
		if opts.Priority > 0 {
			merged.Priority = opts.Priority
		}
		if opts.Attempts > 0 {
			merged.Attempts = opts.Attempts
		}
		if opts.Backoff.Type != "" {
			merged.Backoff = opts.Backoff
		}
		merged.Delay = opts.Delay
		merged.JobID = opts.JobID
	}
	if merged.Priority == 0 {
		merged.Priority = int(s.resolver.Resolve(jobType, raw))
	}

	job, err := s.store.Enqueue(ctx, queue, jobType, raw, merged)
	if err != nil {
		return nil, err
	}
	s.log.Info("job submitted",
		zap.String("queue", queue),
		zap.String("type", jobType),
		zap.String("job_id", job.ID),
		zap.String("tier", domain.TierOf(job.Priority).String()),
		zap.Int("priority", job.Priority))
	return job, nil
}

// SubmitBandSync submits a single-band sync with a date-stamped
// idempotency-friendly job ID. Featured bands resolve to CRITICAL,
// everything else to NORMAL.
func (s *Service) SubmitBandSync(ctx context.Context, bandID, mode, triggeredBy string, override *domain.Tier) (*domain.Job, error) {
	opts := &Options{JobID: fmt.Sprintf("sync-%s-%d", bandID, s.now().Unix())}
	if override != nil {
		opts.Priority = int(*override)
	}
	payload := domain.SyncBandPayload{BandID: bandID, Mode: mode, TriggeredBy: triggeredBy}
	return s.SubmitWithPriority(ctx, domain.QueueSync, domain.TypeSyncBand, payload, opts)
}

// SubmitVideoProcessing submits a single-video job: CRITICAL when the
// owning band is featured, HIGH when the video is fresh (<24h), else
// NORMAL. Two attempts with a short exponential backoff: a single-video
// operation is cheap to retry fast.
func (s *Service) SubmitVideoProcessing(ctx context.Context, p domain.ProcessVideoPayload, override *domain.Tier) (*domain.Job, error) {
	opts := &Options{
		Attempts: 2,
		Backoff:  domain.BackoffPolicy{Type: domain.BackoffExponential, Delay: 5 * time.Second},
	}
	if override != nil {
		opts.Priority = int(*override)
	}
	return s.SubmitWithPriority(ctx, domain.QueueProcessing, domain.TypeProcessVideo, p, opts)
}

// UpdateJobPriority reprioritizes a waiting or delayed job. The store has
// no in-place priority mutation, so this is remove-then-reinsert under a
// derived job ID (the suffix avoids colliding with the original's
// idempotency key). The gap between remove and reinsert is not guarded
// against a concurrent dequeue; this is an admin escape hatch, not a
// steady-state operation.
func (s *Service) UpdateJobPriority(ctx context.Context, queue, jobID string, tier domain.Tier) error {
	st, err := s.store.State(ctx, queue, jobID)
	if err != nil {
		return err
	}
	if st != domain.StateWaiting && st != domain.StateDelayed {
		return &domain.InvalidStateError{JobID: jobID, State: st}
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, queue, jobID); err != nil {
		return errors.Wrap(err, "remove for reprioritize")
	}

	opts := Options{
		Priority: int(tier),
		Attempts: job.MaxAttempts,
		Backoff:  job.Backoff,
		JobID:    fmt.Sprintf("%s-r%d", jobID, s.now().UnixMilli()),
	}
	if st == domain.StateDelayed && !job.ReadyAt.IsZero() {
		if d := job.ReadyAt.Sub(s.now()); d > 0 {
			opts.Delay = d
		}
	}
	if _, err := s.store.Enqueue(ctx, queue, job.Type, job.Payload, opts); err != nil {
		return errors.Wrap(err, "reinsert for reprioritize")
	}
	s.log.Info("job reprioritized",
		zap.String("queue", queue),
		zap.String("job_id", jobID),
		zap.String("tier", tier.String()))
	return nil
}

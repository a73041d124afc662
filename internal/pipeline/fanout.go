// Package pipeline holds the processors for each stage of the content
// pipeline: fan-out, per-band sync, matching, promotion, stats and
// cleanup. Each processor is idempotent and independently retryable.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/queue"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
)

// Submitter is the slice of the submission facade the fan-out needs.
type Submitter interface {
	SubmitWithPriority(ctx context.Context, q, jobType string, payload any, opts *queue.Options) (*domain.Job, error)
}

type BandLister interface {
	ActiveBands(ctx context.Context) ([]storage.Band, error)
}

// stagger parameters: every batch of bands gets one extra priority
// ordinal step and one extra delay step, throttling burst load against
// the rate-limited external API.
const (
	staggerDelay     = time.Minute
	defaultBatchSize = 5
)

// FanOut consumes sync-all jobs and submits one sync-band job per
// eligible band. It never performs any syncing itself.
type FanOut struct {
	bands  BandLister
	submit Submitter
	log    *zap.Logger
	now    func() time.Time
}

func NewFanOut(bands BandLister, submit Submitter, log *zap.Logger) *FanOut {
	return &FanOut{bands: bands, submit: submit, log: log, now: time.Now}
}

func (f *FanOut) Handle(ctx context.Context, job *domain.Job) error {
	var p domain.SyncAllPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return domain.NewConfigurationError("sync-all payload: %v", err)
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.Mode == "" {
		p.Mode = domain.SyncModeIncremental
	}

	bands, err := f.bands.ActiveBands(ctx)
	if err != nil {
		return err // setup failure propagates to the store's retry
	}

	res := f.Run(ctx, bands, p)
	f.log.Info("sync fan-out complete",
		zap.String("mode", p.Mode),
		zap.Int("batch_size", p.BatchSize),
		zap.Int("queued", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Duration("estimated_duration", EstimatedDuration(len(bands), p.BatchSize)))
	return nil
}

// Run submits one sync job per band. Band i gets priority ordinal
// NORMAL + i/batch and delay (i/batch) * staggerDelay.
func (f *FanOut) Run(ctx context.Context, bands []storage.Band, p domain.SyncAllPayload) domain.StageResult {
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	start := f.now()
	res := domain.StageResult{Stage: "fan-out"}
	nowUnix := start.Unix()

	for i, band := range bands {
		res.Processed++
		step := i / p.BatchSize
		opts := &queue.Options{
			Priority: int(domain.TierNormal) + step,
			Delay:    time.Duration(step) * staggerDelay,
			JobID:    fmt.Sprintf("sync-%s-%d", band.ID, nowUnix),
		}
		payload := domain.SyncBandPayload{BandID: band.ID, Mode: p.Mode, TriggeredBy: "fan-out"}
		_, err := f.submit.SubmitWithPriority(ctx, domain.QueueSync, domain.TypeSyncBand, payload, opts)
		switch {
		case err == queue.ErrDuplicate:
			res.Skipped++ // already queued this second, e.g. overlapping campaigns
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("band %s: %v", band.ID, err))
		default:
			res.Succeeded++
		}
	}
	res.Duration = f.now().Sub(start)
	return res
}

// EstimatedDuration is the wall-clock spread of the staggered campaign.
func EstimatedDuration(bands, batchSize int) time.Duration {
	if bands == 0 || batchSize <= 0 {
		return 0
	}
	steps := (bands + batchSize - 1) / batchSize
	return time.Duration(steps) * staggerDelay
}

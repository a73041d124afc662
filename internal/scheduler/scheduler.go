// Package scheduler owns the fixed-cadence maintenance triggers: daily
// incremental sync, weekly full sync, daily cleanup and the hourly stats
// refresh. Every trigger is gated on the production environment so
// non-production deployments never burn shared API quota.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/config"
	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/queue"
)

// Submitter is the slice of the submission facade the scheduler uses.
type Submitter interface {
	SubmitWithPriority(ctx context.Context, q, jobType string, payload any, opts *queue.Options) (*domain.Job, error)
}

// RepeatableStore records recurring registrations in the job store so
// stale ones from prior deployments can be purged at startup.
type RepeatableStore interface {
	RegisterRepeatable(ctx context.Context, queue string, spec queue.RepeatableSpec) error
	ListRepeatable(ctx context.Context, queue string) ([]queue.RepeatableSpec, error)
	RemoveRepeatable(ctx context.Context, queue, pattern, jobType string) error
}

// Entry is one recurring trigger. Build derives the payload and options
// from the firing time; date-keyed job IDs make a restarted scheduler's
// second submission of the same trigger a duplicate, not a double-fire.
type Entry struct {
	Name    string
	Pattern string // standard 5-field cron, UTC
	Queue   string
	JobType string
	Gate    func(now time.Time) bool
	Build   func(now time.Time) (payload any, opts *queue.Options)
}

func Entries(cfg config.Config) []Entry {
	return []Entry{
		{
			Name:    "daily-incremental-sync",
			Pattern: "0 3 * * *",
			Queue:   domain.QueueMaintenance,
			JobType: domain.TypeSyncAllBands,
			Build: func(now time.Time) (any, *queue.Options) {
				return domain.SyncAllPayload{Mode: domain.SyncModeIncremental, BatchSize: 5, TriggeredBy: "scheduler"},
					&queue.Options{
						Priority: int(domain.TierNormal),
						JobID:    "sync-all-incremental-" + now.Format("2006-01-02"),
					}
			},
		},
		{
			Name:    "weekly-full-sync",
			Pattern: "0 4 * * 0",
			Queue:   domain.QueueMaintenance,
			JobType: domain.TypeSyncAllBands,
			Build: func(now time.Time) (any, *queue.Options) {
				// full mode is heavier per band, so the campaign is
				// throttled harder via the smaller batch
				return domain.SyncAllPayload{Mode: domain.SyncModeFull, BatchSize: 3, TriggeredBy: "scheduler"},
					&queue.Options{
						Priority: int(domain.TierLow),
						JobID:    "sync-all-full-" + now.Format("2006-01-02"),
					}
			},
		},
		{
			Name:    "daily-cleanup",
			Pattern: "0 5 * * *",
			Queue:   domain.QueueMaintenance,
			JobType: domain.TypeCleanupVideos,
			Build: func(now time.Time) (any, *queue.Options) {
				// attempts=1: a failed cleanup escalates to the failed set
				// for diagnosis instead of being blindly re-run
				return domain.CleanupPayload{TriggeredBy: "scheduler"},
					&queue.Options{
						Priority: int(domain.TierLow),
						Attempts: 1,
						JobID:    "cleanup-" + now.Format("2006-01-02"),
					}
			},
		},
		{
			Name:    "hourly-stats",
			Pattern: "0 * * * *",
			Queue:   domain.QueueMaintenance,
			JobType: domain.TypeUpdateStats,
			Gate: func(now time.Time) bool {
				h := now.UTC().Hour()
				return h >= cfg.StatsPeakStartHour && h < cfg.StatsPeakEndHour
			},
			Build: func(now time.Time) (any, *queue.Options) {
				return domain.UpdateStatsPayload{TriggeredBy: "scheduler"},
					&queue.Options{
						Priority: int(domain.TierLow),
						Backoff:  domain.BackoffPolicy{Type: domain.BackoffFixed, Delay: 30 * time.Second},
						JobID:    "update-stats-" + now.Format("2006-01-02-15"),
					}
			},
		},
		{
			Name:    "hourly-match",
			Pattern: "15 * * * *",
			Queue:   domain.QueueProcessing,
			JobType: domain.TypeMatchVideos,
			Build: func(now time.Time) (any, *queue.Options) {
				return struct{}{}, &queue.Options{JobID: "match-videos-" + now.Format("2006-01-02-15")}
			},
		},
		{
			Name:    "hourly-promote",
			Pattern: "30 * * * *",
			Queue:   domain.QueueProcessing,
			JobType: domain.TypePromoteVideos,
			Build: func(now time.Time) (any, *queue.Options) {
				return struct{}{}, &queue.Options{JobID: "promote-videos-" + now.Format("2006-01-02-15")}
			},
		},
	}
}

type Scheduler struct {
	submit  Submitter
	store   RepeatableStore
	cfg     config.Config
	entries []Entry
	cron    *cron.Cron
	log     *zap.Logger
	now     func() time.Time
}

func New(submit Submitter, store RepeatableStore, cfg config.Config, log *zap.Logger) *Scheduler {
	return &Scheduler{
		submit:  submit,
		store:   store,
		cfg:     cfg,
		entries: Entries(cfg),
		cron:    cron.New(cron.WithLocation(time.UTC)),
		log:     log,
		now:     time.Now,
	}
}

// Start purges stale recurring registrations, registers the current set,
// and runs the cron loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.resetRegistrations(ctx); err != nil {
		return err
	}
	for _, e := range s.entries {
		entry := e
		if _, err := s.cron.AddFunc(entry.Pattern, func() { s.Fire(context.Background(), entry) }); err != nil {
			return domain.NewConfigurationError("cron pattern %q for %s: %v", entry.Pattern, entry.Name, err)
		}
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("entries", len(s.entries)), zap.Bool("production", s.cfg.IsProduction()))

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	return nil
}

// resetRegistrations removes every recurring registration left in the
// store and re-registers the current entries. Redeploys would otherwise
// accumulate stale repeat definitions that fire duplicates.
func (s *Scheduler) resetRegistrations(ctx context.Context) error {
	purged := 0
	for _, q := range domain.Queues {
		specs, err := s.store.ListRepeatable(ctx, q)
		if err != nil {
			return err
		}
		for _, spec := range specs {
			if err := s.store.RemoveRepeatable(ctx, q, spec.Pattern, spec.JobType); err != nil {
				return err
			}
			purged++
		}
	}

	for _, e := range s.entries {
		payload, _ := e.Build(s.now().UTC())
		raw, err := json.Marshal(payload)
		if err != nil {
			return domain.NewConfigurationError("marshal %s template: %v", e.Name, err)
		}
		spec := queue.RepeatableSpec{Pattern: e.Pattern, JobType: e.JobType, Payload: raw}
		if err := s.store.RegisterRepeatable(ctx, e.Queue, spec); err != nil {
			return err
		}
	}
	s.log.Info("recurring registrations reset",
		zap.Int("purged", purged),
		zap.Int("registered", len(s.entries)))
	return nil
}

// Fire runs one trigger: environment gate, then the entry's own gate,
// then submission. A duplicate date-keyed job ID means the trigger
// already fired today (e.g. a same-day process restart) and is skipped.
func (s *Scheduler) Fire(ctx context.Context, e Entry) {
	now := s.now().UTC()
	if !s.cfg.IsProduction() {
		s.log.Debug("trigger skipped outside production", zap.String("entry", e.Name))
		return
	}
	if e.Gate != nil && !e.Gate(now) {
		s.log.Debug("trigger gated off", zap.String("entry", e.Name), zap.Time("now", now))
		return
	}

	payload, opts := e.Build(now)
	_, err := s.submit.SubmitWithPriority(ctx, e.Queue, e.JobType, payload, opts)
	switch {
	case err == queue.ErrDuplicate:
		s.log.Info("trigger already submitted", zap.String("entry", e.Name))
	case err != nil:
		s.log.Error("trigger submission failed", zap.String("entry", e.Name), zap.Error(err))
	default:
		s.log.Info("trigger submitted", zap.String("entry", e.Name), zap.String("job_id", jobID(opts)))
	}
}

func jobID(opts *queue.Options) string {
	if opts == nil {
		return ""
	}
	return opts.JobID
}

// NextRun reports when an entry will next fire, for logs and diagnostics.
func NextRun(e Entry, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(e.Pattern)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", e.Pattern, err)
	}
	return sched.Next(from), nil
}

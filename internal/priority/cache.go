package priority

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FeaturedSource is the source of truth for featured band IDs.
type FeaturedSource interface {
	FeaturedBandIDs(ctx context.Context) ([]string, error)
}

// FeaturedCache holds the set of featured band IDs used for priority
// elevation. Readers see an immutable snapshot; refresh swaps the whole
// set atomically so there is no partial-update window. Staleness is
// bounded by the refresh interval.
type FeaturedCache struct {
	src      FeaturedSource
	interval time.Duration
	log      *zap.Logger
	snap     atomic.Value // map[string]struct{}
}

func NewFeaturedCache(src FeaturedSource, interval time.Duration, log *zap.Logger) *FeaturedCache {
	c := &FeaturedCache{src: src, interval: interval, log: log}
	c.snap.Store(map[string]struct{}{})
	return c
}

// Refresh queries the source of truth and swaps the snapshot. On failure
// the previous snapshot is retained: stale-but-available beats
// empty-and-wrong.
func (c *FeaturedCache) Refresh(ctx context.Context) error {
	ids, err := c.src.FeaturedBandIDs(ctx)
	if err != nil {
		c.log.Warn("featured cache refresh failed, keeping previous snapshot", zap.Error(err))
		return err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	c.snap.Store(set)
	c.log.Debug("featured cache refreshed", zap.Int("size", len(set)))
	return nil
}

// Contains never errors; an empty or uninitialized cache reads as
// not-featured, which degrades priority but never blocks submission.
func (c *FeaturedCache) Contains(id string) bool {
	set := c.snap.Load().(map[string]struct{})
	_, ok := set[id]
	return ok
}

func (c *FeaturedCache) Size() int {
	return len(c.snap.Load().(map[string]struct{}))
}

// Run refreshes on a fixed interval until ctx is cancelled. The initial
// blocking refresh is the caller's job (call Refresh before Run so the
// scheduler starts with a warm set).
func (c *FeaturedCache) Run(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = c.Refresh(ctx) // logged inside; never crash the process
		}
	}
}

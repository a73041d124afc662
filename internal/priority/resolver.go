// Package priority decides, at submission time, how urgently a job should
// run relative to others sharing external API quota and worker concurrency.
package priority

import (
	"encoding/json"
	"time"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

// BulkThreshold is the batch size above which a job counts as a bulk
// operation and is deprioritized.
const BulkThreshold = 10

// Snapshot is the read side of the featured cache.
type Snapshot interface {
	Contains(id string) bool
}

// Context carries the flags the rule list evaluates.
type Context struct {
	Featured bool // primary band is currently featured
	Recent   bool // concerns a video published within the last 24h
	Bulk     bool // batch-size-like field exceeds BulkThreshold
}

// probe is the duck-typed view of any payload the resolver needs.
// NOTE: bulk detection keys on batchSize/limit; a new job kind with a
// differently named batch field will not be recognized as bulk.
type probe struct {
	Priority    *int       `json:"priority,omitempty"`
	BandID      string     `json:"bandId,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	BatchSize   int        `json:"batchSize,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

// Resolver maps (job type, payload) to a priority tier by evaluating an
// ordered rule list, first match wins. Pure aside from the cache read.
type Resolver struct {
	featured Snapshot
	now      func() time.Time
}

func NewResolver(featured Snapshot) *Resolver {
	return &Resolver{featured: featured, now: time.Now}
}

// Resolve returns the tier for a job. An explicit priority on the payload
// always wins; it is the escape hatch for admin-triggered urgency.
func (r *Resolver) Resolve(jobType string, payload json.RawMessage) domain.Tier {
	var p probe
	_ = json.Unmarshal(payload, &p) // malformed payload just means no flags
	if p.Priority != nil {
		return domain.Tier(*p.Priority)
	}
	return r.ResolveContext(jobType, r.buildContext(p))
}

func (r *Resolver) buildContext(p probe) Context {
	return Context{
		Featured: p.BandID != "" && r.featured != nil && r.featured.Contains(p.BandID),
		Recent:   p.PublishedAt != nil && r.now().Sub(*p.PublishedAt) < 24*time.Hour,
		Bulk:     p.BatchSize > BulkThreshold || p.Limit > BulkThreshold,
	}
}

// ResolveContext evaluates the rule list in its fixed order:
//
//  1. featured band            -> CRITICAL
//  2. recent video             -> HIGH
//  3. bulk operation           -> LOW
//  4. sync-all (inherent bulk) -> LOW
//  5. cleanup                  -> LOW
//  6. match videos to bands    -> NORMAL
//  7. backfills                -> LOW
//  8. anything else            -> NORMAL
func (r *Resolver) ResolveContext(jobType string, c Context) domain.Tier {
	switch {
	case c.Featured:
		return domain.TierCritical
	case c.Recent:
		return domain.TierHigh
	case c.Bulk:
		return domain.TierLow
	}
	switch jobType {
	case domain.TypeSyncAllBands:
		return domain.TierLow
	case domain.TypeCleanupVideos:
		return domain.TierLow
	case domain.TypeMatchVideos:
		return domain.TierNormal
	case domain.TypeBackfillCreators, domain.TypeBackfillBands:
		return domain.TierLow
	}
	return domain.TierNormal
}

// Package metrics is the read-only observability surface over job store
// state, consumed by the admin dashboard and scraped by prometheus.
package metrics

import (
	"context"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

// TierCounter is the slice of the job store the reporter reads.
type TierCounter interface {
	CountByTier(ctx context.Context, queue string, state domain.State) (map[domain.Tier]int, error)
}

// inspectStates are the states the distribution covers; completed and
// failed jobs age out of the store and are not part of the picture.
var inspectStates = []domain.State{domain.StateWaiting, domain.StateActive, domain.StateDelayed}

// Distribution is queue -> state -> tier name -> count.
type Distribution map[string]map[string]map[string]int

// Metrics is the distribution plus overall per-tier percentages.
type Metrics struct {
	Distribution Distribution       `json:"distribution"`
	Totals       map[string]int     `json:"totals"`
	Percentages  map[string]float64 `json:"percentages"`
}

type Reporter struct {
	store TierCounter
	depth *prometheus.GaugeVec
}

func NewReporter(store TierCounter, reg prometheus.Registerer) *Reporter {
	return &Reporter{
		store: store,
		depth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandhub_queue_jobs",
			Help: "Jobs in the store by queue, state and priority tier.",
		}, []string{"queue", "state", "tier"}),
	}
}

// PriorityDistribution buckets every inspectable job into its tier.
func (r *Reporter) PriorityDistribution(ctx context.Context) (Distribution, error) {
	dist := make(Distribution, len(domain.Queues))
	for _, q := range domain.Queues {
		dist[q] = make(map[string]map[string]int, len(inspectStates))
		for _, st := range inspectStates {
			counts, err := r.store.CountByTier(ctx, q, st)
			if err != nil {
				return nil, err
			}
			byTier := make(map[string]int, len(domain.Tiers))
			for _, tier := range domain.Tiers {
				byTier[tier.String()] = counts[tier]
			}
			dist[q][string(st)] = byTier
		}
	}
	return dist, nil
}

// PriorityMetrics adds overall totals and percentages to the
// distribution and refreshes the prometheus gauges as a side effect.
func (r *Reporter) PriorityMetrics(ctx context.Context) (Metrics, error) {
	dist, err := r.PriorityDistribution(ctx)
	if err != nil {
		return Metrics{}, err
	}

	totals := make(map[string]int, len(domain.Tiers))
	sum := 0
	for q, states := range dist {
		for st, byTier := range states {
			for tier, n := range byTier {
				totals[tier] += n
				sum += n
				r.depth.WithLabelValues(q, st, tier).Set(float64(n))
			}
		}
	}

	pct := make(map[string]float64, len(totals))
	for tier, n := range totals {
		if sum == 0 {
			pct[tier] = 0
			continue
		}
		pct[tier] = math.Round(float64(n)/float64(sum)*10000) / 100
	}
	return Metrics{Distribution: dist, Totals: totals, Percentages: pct}, nil
}

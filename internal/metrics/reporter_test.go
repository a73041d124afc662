package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

type fakeTierCounter struct {
	// queue|state -> tier counts
	counts map[string]map[domain.Tier]int
}

func (f *fakeTierCounter) CountByTier(ctx context.Context, queue string, state domain.State) (map[domain.Tier]int, error) {
	return f.counts[queue+"|"+string(state)], nil
}

func TestPriorityDistribution(t *testing.T) {
	store := &fakeTierCounter{counts: map[string]map[domain.Tier]int{
		"sync|waiting":       {domain.TierCritical: 2, domain.TierNormal: 7},
		"sync|delayed":       {domain.TierLow: 3},
		"processing|waiting": {domain.TierHigh: 4},
	}}
	r := NewReporter(store, prometheus.NewRegistry())

	dist, err := r.PriorityDistribution(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got := dist["sync"]["waiting"]["critical"]; got != 2 {
		t.Errorf("sync/waiting/critical = %d, want 2", got)
	}
	if got := dist["sync"]["delayed"]["low"]; got != 3 {
		t.Errorf("sync/delayed/low = %d, want 3", got)
	}
	if got := dist["processing"]["waiting"]["high"]; got != 4 {
		t.Errorf("processing/waiting/high = %d, want 4", got)
	}
	// tiers with no jobs report zero, not absent
	if got, ok := dist["maintenance"]["active"]["normal"]; !ok || got != 0 {
		t.Errorf("empty bucket = %d (ok=%v), want explicit 0", got, ok)
	}
}

func TestPriorityMetrics_TotalsAndPercentages(t *testing.T) {
	store := &fakeTierCounter{counts: map[string]map[domain.Tier]int{
		"sync|waiting":       {domain.TierCritical: 1, domain.TierNormal: 5},
		"processing|waiting": {domain.TierNormal: 1, domain.TierLow: 1},
	}}
	r := NewReporter(store, prometheus.NewRegistry())

	m, err := r.PriorityMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got := m.Totals["normal"]; got != 6 {
		t.Errorf("normal total = %d, want 6", got)
	}
	if got := m.Percentages["normal"]; got != 75.0 {
		t.Errorf("normal pct = %v, want 75", got)
	}
	if got := m.Percentages["critical"]; got != 12.5 {
		t.Errorf("critical pct = %v, want 12.5", got)
	}
}

func TestPriorityMetrics_EmptyStore(t *testing.T) {
	store := &fakeTierCounter{counts: map[string]map[domain.Tier]int{}}
	r := NewReporter(store, prometheus.NewRegistry())

	m, err := r.PriorityMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for tier, pct := range m.Percentages {
		if pct != 0 {
			t.Errorf("tier %s pct = %v, want 0 on an empty store", tier, pct)
		}
	}
}

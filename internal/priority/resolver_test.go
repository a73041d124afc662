package priority

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

type fakeSnapshot map[string]bool

func (f fakeSnapshot) Contains(id string) bool { return f[id] }

func newTestResolver(featured ...string) *Resolver {
	snap := fakeSnapshot{}
	for _, id := range featured {
		snap[id] = true
	}
	r := NewResolver(snap)
	r.now = func() time.Time { return time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC) }
	return r
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestResolve_FeaturedBandIsCritical(t *testing.T) {
	r := newTestResolver("band-1")
	got := r.Resolve(domain.TypeSyncBand, payload(t, domain.SyncBandPayload{BandID: "band-1"}))
	if got != domain.TierCritical {
		t.Errorf("featured band resolved to %v, want critical", got)
	}
}

func TestResolve_NonFeaturedBandIsNormal(t *testing.T) {
	r := newTestResolver("band-1")
	got := r.Resolve(domain.TypeSyncBand, payload(t, domain.SyncBandPayload{BandID: "band-2"}))
	if got != domain.TierNormal {
		t.Errorf("non-featured band resolved to %v, want normal", got)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := newTestResolver("band-1")
	raw := payload(t, domain.SyncBandPayload{BandID: "band-1"})
	first := r.Resolve(domain.TypeSyncBand, raw)
	for i := 0; i < 10; i++ {
		if got := r.Resolve(domain.TypeSyncBand, raw); got != first {
			t.Fatalf("resolution not deterministic: %v then %v", first, got)
		}
	}
}

func TestResolve_ExplicitOverrideWins(t *testing.T) {
	r := newTestResolver("band-1")
	// featured band would be critical, but the explicit priority wins
	raw := payload(t, map[string]any{"bandId": "band-1", "priority": int(domain.TierLow)})
	if got := r.Resolve(domain.TypeSyncBand, raw); got != domain.TierLow {
		t.Errorf("explicit override resolved to %v, want low", got)
	}
}

func TestResolve_FeaturedBeatsBulk(t *testing.T) {
	r := newTestResolver("band-1")
	raw := payload(t, map[string]any{"bandId": "band-1", "batchSize": 50})
	if got := r.Resolve(domain.TypeSyncBand, raw); got != domain.TierCritical {
		t.Errorf("featured+bulk resolved to %v, want critical (featured rule first)", got)
	}
}

func TestResolve_RecentVideoIsHigh(t *testing.T) {
	r := newTestResolver()
	published := time.Date(2025, 10, 4, 2, 0, 0, 0, time.UTC) // 10h before "now"
	raw := payload(t, domain.ProcessVideoPayload{VideoID: "v1", PublishedAt: &published})
	if got := r.Resolve(domain.TypeProcessVideo, raw); got != domain.TierHigh {
		t.Errorf("recent video resolved to %v, want high", got)
	}
}

func TestResolve_StaleVideoIsNormal(t *testing.T) {
	r := newTestResolver()
	published := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	raw := payload(t, domain.ProcessVideoPayload{VideoID: "v1", PublishedAt: &published})
	if got := r.Resolve(domain.TypeProcessVideo, raw); got != domain.TierNormal {
		t.Errorf("stale video resolved to %v, want normal", got)
	}
}

func TestResolve_BulkThreshold(t *testing.T) {
	r := newTestResolver()
	tests := []struct {
		batchSize int
		want      domain.Tier
	}{
		{BulkThreshold, domain.TierNormal}, // at threshold is not bulk
		{BulkThreshold + 1, domain.TierLow},
	}
	for _, tt := range tests {
		raw := payload(t, map[string]any{"batchSize": tt.batchSize})
		if got := r.Resolve(domain.TypeProcessVideo, raw); got != tt.want {
			t.Errorf("batchSize=%d resolved to %v, want %v", tt.batchSize, got, tt.want)
		}
	}
}

func TestResolve_JobTypeRules(t *testing.T) {
	r := newTestResolver()
	tests := []struct {
		jobType string
		want    domain.Tier
	}{
		{domain.TypeSyncAllBands, domain.TierLow},
		{domain.TypeCleanupVideos, domain.TierLow},
		{domain.TypeMatchVideos, domain.TierNormal},
		{domain.TypeBackfillCreators, domain.TierLow},
		{domain.TypeBackfillBands, domain.TierLow},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.jobType, payload(t, struct{}{})); got != tt.want {
			t.Errorf("%s resolved to %v, want %v", tt.jobType, got, tt.want)
		}
	}
}

func TestResolve_UnknownTypeDefaultsNormal(t *testing.T) {
	r := newTestResolver()
	if got := r.Resolve("some-future-job", payload(t, struct{}{})); got != domain.TierNormal {
		t.Errorf("unknown type resolved to %v, want normal", got)
	}
}

func TestResolve_MalformedPayloadDefaultsNormal(t *testing.T) {
	r := newTestResolver()
	if got := r.Resolve(domain.TypeProcessVideo, json.RawMessage(`{not json`)); got != domain.TierNormal {
		t.Errorf("malformed payload resolved to %v, want normal", got)
	}
}

func TestResolve_NilSnapshotNeverPanics(t *testing.T) {
	r := NewResolver(nil)
	defer func() {
		if rec := recover(); rec != nil {
			t.Fatalf("resolver panicked with nil snapshot: %v", rec)
		}
	}()
	got := r.Resolve(domain.TypeSyncBand, payload(t, domain.SyncBandPayload{BandID: "band-1"}))
	if got != domain.TierNormal {
		t.Errorf("nil snapshot resolved to %v, want normal (conservative)", got)
	}
}

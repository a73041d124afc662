package domain

import (
	"testing"
	"time"
)

func TestBackoffNext_Exponential(t *testing.T) {
	b := BackoffPolicy{Type: BackoffExponential, Delay: 5 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Next(tt.attempt); got != tt.want {
			t.Errorf("Next(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffNext_ExponentialCap(t *testing.T) {
	b := BackoffPolicy{Type: BackoffExponential, Delay: time.Minute}
	if got := b.Next(12); got != 10*time.Minute {
		t.Errorf("Next(12) = %v, want cap of 10m", got)
	}
}

func TestBackoffNext_Fixed(t *testing.T) {
	b := BackoffPolicy{Type: BackoffFixed, Delay: 30 * time.Second}
	for _, attempt := range []int{1, 2, 5} {
		if got := b.Next(attempt); got != 30*time.Second {
			t.Errorf("Next(%d) = %v, want 30s", attempt, got)
		}
	}
}

func TestBackoffNext_ZeroDelay(t *testing.T) {
	b := BackoffPolicy{Type: BackoffExponential}
	if got := b.Next(3); got != 0 {
		t.Errorf("Next(3) = %v, want 0", got)
	}
}

func TestTierOf(t *testing.T) {
	tests := []struct {
		priority int
		want     Tier
	}{
		{1, TierCritical},
		{2, TierHigh},
		{3, TierHigh},
		{5, TierNormal},
		{6, TierLow}, // fan-out staggered ordinals land here
		{10, TierLow},
		{25, TierLow},
	}
	for _, tt := range tests {
		if got := TierOf(tt.priority); got != tt.want {
			t.Errorf("TierOf(%d) = %v, want %v", tt.priority, got, tt.want)
		}
	}
}

func TestTierString(t *testing.T) {
	if TierCritical.String() != "critical" || TierLow.String() != "low" {
		t.Errorf("unexpected tier names: %s, %s", TierCritical, TierLow)
	}
}

package domain

import "time"

// SyncBandPayload drives a single-band sync.
type SyncBandPayload struct {
	BandID      string `json:"bandId"`
	Mode        string `json:"mode"` // "incremental" or "full"
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

const (
	SyncModeIncremental = "incremental"
	SyncModeFull        = "full"
)

// SyncAllPayload drives the fan-out job that spawns per-band syncs.
type SyncAllPayload struct {
	Mode        string `json:"mode"`
	BatchSize   int    `json:"batchSize"`
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

// ProcessVideoPayload drives a single-video processing job.
type ProcessVideoPayload struct {
	VideoID     string     `json:"videoId"`
	BandID      string     `json:"bandId,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// CleanupPayload drives the daily maintenance cleanup.
type CleanupPayload struct {
	RetainDays  int    `json:"retainDays,omitempty"`
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

// UpdateStatsPayload drives the hourly metrics recalculation.
type UpdateStatsPayload struct {
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

// StageResult summarizes one processor run. It is observability output
// only; no stage reads another stage's result for control flow.
type StageResult struct {
	Stage     string        `json:"stage"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Errors    []string      `json:"errors,omitempty"`
}

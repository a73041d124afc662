package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
)

// Trend classifications relative to the previously stored score.
const (
	TrendNew    = "new"
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// trendThreshold is the relative change beyond which a score counts as
// moving rather than stable.
const trendThreshold = 0.10

type StatsRepo interface {
	ActiveBands(ctx context.Context) ([]storage.Band, error)
	BandStatsWindow(ctx context.Context, bandID string) (storage.BandStats, error)
	PreviousTrendingScore(ctx context.Context, bandID string) (float64, bool, error)
	UpsertBandMetrics(ctx context.Context, m storage.BandMetrics) error
	RerankBands(ctx context.Context) error
}

// StatsProcessor recomputes every band's windowed aggregates and trending
// score, then re-ranks all bands in a second pass.
type StatsProcessor struct {
	repo StatsRepo
	log  *zap.Logger
	now  func() time.Time
}

func NewStatsProcessor(repo StatsRepo, log *zap.Logger) *StatsProcessor {
	return &StatsProcessor{repo: repo, log: log, now: time.Now}
}

func (sp *StatsProcessor) Handle(ctx context.Context, job *domain.Job) error {
	res, err := sp.Run(ctx)
	if err != nil {
		return err
	}
	sp.log.Info("stats recalculated",
		zap.Int("bands", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Duration("took", res.Duration))
	return nil
}

func (sp *StatsProcessor) Run(ctx context.Context) (domain.StageResult, error) {
	start := sp.now()
	res := domain.StageResult{Stage: "stats"}

	bands, err := sp.repo.ActiveBands(ctx)
	if err != nil {
		return res, err
	}

	for _, band := range bands {
		res.Processed++
		if err := sp.recompute(ctx, band.ID); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("band %s: %v", band.ID, err))
			continue
		}
		res.Succeeded++
	}

	// second pass: ranks depend on every band's fresh score
	if err := sp.repo.RerankBands(ctx); err != nil {
		return res, err
	}
	res.Duration = sp.now().Sub(start)
	return res, nil
}

func (sp *StatsProcessor) recompute(ctx context.Context, bandID string) error {
	stats, err := sp.repo.BandStatsWindow(ctx, bandID)
	if err != nil {
		return err
	}
	score := TrendingScore(stats)
	prev, hasPrev, err := sp.repo.PreviousTrendingScore(ctx, bandID)
	if err != nil {
		return err
	}
	return sp.repo.UpsertBandMetrics(ctx, storage.BandMetrics{
		BandID:        bandID,
		Stats:         stats,
		TrendingScore: score,
		Trend:         ClassifyTrend(prev, score, hasPrev),
	})
}

// TrendingScore is a weighted sum of log-scaled terms, rounded to two
// decimals. Log scaling keeps one viral video from drowning everything
// else out.
func TrendingScore(s storage.BandStats) float64 {
	score := 0.40*math.Log10(float64(s.ViewsWeek)+1) +
		0.25*math.Log10(float64(s.ViewsToday)+1) +
		0.20*math.Log10(float64(s.RecentUploads)+1) +
		0.15*math.Log10(float64(s.Likes+s.Comments)+1)
	return math.Round(score*100) / 100
}

// ClassifyTrend compares the current score against the previous one:
// more than +10% is up, more than -10% is down, anything between is
// stable. A band without a prior score is new.
func ClassifyTrend(prev, current float64, hasPrev bool) string {
	if !hasPrev || prev <= 0 {
		return TrendNew
	}
	change := (current - prev) / prev
	switch {
	case change > trendThreshold:
		return TrendUp
	case change < -trendThreshold:
		return TrendDown
	default:
		return TrendStable
	}
}

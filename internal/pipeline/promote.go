package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
)

type PromotionRepo interface {
	StagedUnpromoted(ctx context.Context, limit int) ([]storage.StagedVideo, error)
	PublicVideoExists(ctx context.Context, youtubeID string) (bool, error)
	InsertPublicVideo(ctx context.Context, v storage.PublicVideo) error
	MarkPromoted(ctx context.Context, stagedID string) error
}

const (
	promoteBatchLimit    = 500
	promoteProgressEvery = 50
)

// Promoter copies staged videos with a resolved band into the public
// table. One bad record never blocks the rest: per-record failures are
// collected into the stage result and the job still completes.
type Promoter struct {
	repo PromotionRepo
	log  *zap.Logger
	now  func() time.Time
}

func NewPromoter(repo PromotionRepo, log *zap.Logger) *Promoter {
	return &Promoter{repo: repo, log: log, now: time.Now}
}

func (p *Promoter) Handle(ctx context.Context, job *domain.Job) error {
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	p.log.Info("promotion complete",
		zap.Int("processed", res.Processed),
		zap.Int("promoted", res.Succeeded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Duration("took", res.Duration))
	return nil
}

func (p *Promoter) Run(ctx context.Context) (domain.StageResult, error) {
	start := p.now()
	res := domain.StageResult{Stage: "promote"}

	staged, err := p.repo.StagedUnpromoted(ctx, promoteBatchLimit)
	if err != nil {
		return res, err // cannot even read candidates; let the store retry
	}

	for _, v := range staged {
		res.Processed++

		promoted, err := p.PromoteOne(ctx, v)
		switch {
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", v.YouTubeID, err))
		case promoted:
			res.Succeeded++
		default:
			res.Skipped++
		}

		if res.Processed%promoteProgressEvery == 0 {
			p.log.Info("promotion progress",
				zap.Int("processed", res.Processed),
				zap.Int("promoted", res.Succeeded))
		}
	}

	res.Duration = p.now().Sub(start)
	return res, nil
}

// PromoteOne copies one staged video into the public table, or just
// marks it promoted when a public row with the same natural key already
// exists (so it never reappears as a candidate). Returns whether a new
// public row was created.
func (p *Promoter) PromoteOne(ctx context.Context, v storage.StagedVideo) (bool, error) {
	exists, err := p.repo.PublicVideoExists(ctx, v.YouTubeID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, p.repo.MarkPromoted(ctx, v.ID)
	}

	pub := storage.PublicVideo{
		YouTubeID:   v.YouTubeID,
		BandID:      v.BandID,
		Title:       v.Title,
		Description: v.Description,
		Category:    Classify(v.Title, v.Description),
		PublishedAt: v.PublishedAt,
		ViewCount:   v.ViewCount,
	}
	if err := p.repo.InsertPublicVideo(ctx, pub); err != nil {
		return false, err
	}
	return true, p.repo.MarkPromoted(ctx, v.ID)
}

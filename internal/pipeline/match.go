package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
)

type MatchRepo interface {
	ActiveBands(ctx context.Context) ([]storage.Band, error)
	UnmatchedStaged(ctx context.Context, limit int) ([]storage.StagedVideo, error)
	AssignStagedBand(ctx context.Context, stagedID, bandID string) error
}

const matchBatchLimit = 500

// Matcher assigns staged videos with no resolved band to a band by
// scanning title and description for band or school names. Staged rows
// that match nothing stay unmatched for the next run; matching is a
// prerequisite for promotion, never a blocker for it.
type Matcher struct {
	repo MatchRepo
	log  *zap.Logger
	now  func() time.Time
}

func NewMatcher(repo MatchRepo, log *zap.Logger) *Matcher {
	return &Matcher{repo: repo, log: log, now: time.Now}
}

func (m *Matcher) Handle(ctx context.Context, job *domain.Job) error {
	res, err := m.Run(ctx)
	if err != nil {
		return err
	}
	m.log.Info("matching complete",
		zap.Int("processed", res.Processed),
		zap.Int("matched", res.Succeeded),
		zap.Int("unmatched", res.Skipped),
		zap.Duration("took", res.Duration))
	return nil
}

func (m *Matcher) Run(ctx context.Context) (domain.StageResult, error) {
	start := m.now()
	res := domain.StageResult{Stage: "match"}

	bands, err := m.repo.ActiveBands(ctx)
	if err != nil {
		return res, err
	}
	staged, err := m.repo.UnmatchedStaged(ctx, matchBatchLimit)
	if err != nil {
		return res, err
	}

	for _, v := range staged {
		res.Processed++
		bandID := matchBand(v, bands)
		if bandID == "" {
			res.Skipped++
			continue
		}
		if err := m.repo.AssignStagedBand(ctx, v.ID, bandID); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("assign %s: %v", v.ID, err))
			continue
		}
		res.Succeeded++
	}

	res.Duration = m.now().Sub(start)
	return res, nil
}

func matchBand(v storage.StagedVideo, bands []storage.Band) string {
	text := strings.ToLower(v.Title + " " + v.Description)
	for _, b := range bands {
		if b.Name != "" && strings.Contains(text, strings.ToLower(b.Name)) {
			return b.ID
		}
		if b.School != "" && strings.Contains(text, strings.ToLower(b.School)) {
			return b.ID
		}
	}
	return ""
}

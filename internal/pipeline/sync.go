package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
	"github.com/JFenderson/BandHub-sub007/internal/youtube"
)

type SyncRepo interface {
	BandByID(ctx context.Context, id string) (storage.Band, error)
	StageVideos(ctx context.Context, bandID string, vids []storage.StagedVideo) (int, error)
	MarkBandSynced(ctx context.Context, bandID string, at time.Time) error
	RecordSyncRun(ctx context.Context, bandID, mode string, staged int) error
}

// incremental syncs walk at most this many pages; full syncs walk the
// whole channel.
const incrementalMaxPages = 2

// Syncer consumes sync-band jobs: pull channel uploads through the
// circuit-broken source and stage anything new.
type Syncer struct {
	repo SyncRepo
	src  youtube.ChannelSource
	log  *zap.Logger
}

func NewSyncer(repo SyncRepo, src youtube.ChannelSource, log *zap.Logger) *Syncer {
	return &Syncer{repo: repo, src: src, log: log}
}

func (s *Syncer) Handle(ctx context.Context, job *domain.Job) error {
	var p domain.SyncBandPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return domain.NewConfigurationError("sync-band payload: %v", err)
	}

	band, err := s.repo.BandByID(ctx, p.BandID)
	if err != nil {
		return err
	}

	var publishedAfter *time.Time
	maxPages := 0
	if p.Mode != domain.SyncModeFull {
		publishedAfter = band.LastSyncedAt
		maxPages = incrementalMaxPages
	}

	vids, err := s.src.ChannelUploads(ctx, band.ChannelID, publishedAfter, maxPages)
	if err != nil {
		return err // transient; the store retries with backoff
	}

	staged := make([]storage.StagedVideo, len(vids))
	for i, v := range vids {
		staged[i] = storage.StagedVideo{
			YouTubeID:   v.ID,
			Title:       v.Title,
			Description: v.Description,
			PublishedAt: v.PublishedAt,
		}
	}
	n, err := s.repo.StageVideos(ctx, band.ID, staged)
	if err != nil {
		return err
	}
	if err := s.repo.MarkBandSynced(ctx, band.ID, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.repo.RecordSyncRun(ctx, band.ID, p.Mode, n); err != nil {
		s.log.Warn("record sync run failed", zap.String("band_id", band.ID), zap.Error(err))
	}

	s.log.Info("band synced",
		zap.String("band_id", band.ID),
		zap.String("mode", p.Mode),
		zap.Int("fetched", len(vids)),
		zap.Int("staged", n))
	return nil
}

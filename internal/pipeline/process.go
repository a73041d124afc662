package pipeline

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
)

type StagedLookup interface {
	StagedByYouTubeID(ctx context.Context, youtubeID string) (storage.StagedVideo, bool, error)
}

// VideoProcessor handles single-video jobs: promote one staged video
// ahead of the batch cadence. Featured bands' uploads arrive here at
// CRITICAL so they go public without waiting for the hourly batch.
type VideoProcessor struct {
	lookup   StagedLookup
	promoter *Promoter
	log      *zap.Logger
}

func NewVideoProcessor(lookup StagedLookup, promoter *Promoter, log *zap.Logger) *VideoProcessor {
	return &VideoProcessor{lookup: lookup, promoter: promoter, log: log}
}

func (vp *VideoProcessor) Handle(ctx context.Context, job *domain.Job) error {
	var p domain.ProcessVideoPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return domain.NewConfigurationError("process-video payload: %v", err)
	}

	v, ok, err := vp.lookup.StagedByYouTubeID(ctx, p.VideoID)
	if err != nil {
		return err
	}
	if !ok || v.Promoted {
		// nothing staged (or already promoted); re-running is harmless
		vp.log.Debug("no staged work for video", zap.String("video_id", p.VideoID))
		return nil
	}
	if v.BandID == "" {
		vp.log.Info("video not yet matched to a band, leaving for the matcher",
			zap.String("video_id", p.VideoID))
		return nil
	}

	promoted, err := vp.promoter.PromoteOne(ctx, v)
	if err != nil {
		return err
	}
	vp.log.Info("video processed",
		zap.String("video_id", p.VideoID),
		zap.Bool("promoted", promoted))
	return nil
}

package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

type CleanupRepo interface {
	DeletePromotedStagedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOrphanedStaged(ctx context.Context) (int64, error)
}

const defaultRetainDays = 30

// Cleaner consumes the daily maintenance cleanup job. It runs with a
// single attempt: a failed cleanup should be diagnosed, not blindly
// retried, since a second pass over a partial cleanup can compound the
// damage.
type Cleaner struct {
	repo CleanupRepo
	log  *zap.Logger
	now  func() time.Time
}

func NewCleaner(repo CleanupRepo, log *zap.Logger) *Cleaner {
	return &Cleaner{repo: repo, log: log, now: time.Now}
}

func (c *Cleaner) Handle(ctx context.Context, job *domain.Job) error {
	var p domain.CleanupPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return domain.NewConfigurationError("cleanup payload: %v", err)
	}
	if p.RetainDays <= 0 {
		p.RetainDays = defaultRetainDays
	}

	cutoff := c.now().UTC().AddDate(0, 0, -p.RetainDays)
	promoted, err := c.repo.DeletePromotedStagedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	orphaned, err := c.repo.DeleteOrphanedStaged(ctx)
	if err != nil {
		return err
	}

	c.log.Info("cleanup complete",
		zap.Time("cutoff", cutoff),
		zap.Int64("promoted_staged_removed", promoted),
		zap.Int64("orphaned_staged_removed", orphaned))
	return nil
}

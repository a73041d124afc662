// The worker binary runs the pipeline processors: one pool per queue,
// with the maintenance pool held to a single consumer so only one
// sync-all campaign is ever in flight.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JFenderson/BandHub-sub007/internal/config"
	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/pipeline"
	"github.com/JFenderson/BandHub-sub007/internal/priority"
	"github.com/JFenderson/BandHub-sub007/internal/queue"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
	"github.com/JFenderson/BandHub-sub007/internal/worker"
	"github.com/JFenderson/BandHub-sub007/internal/youtube"
)

func main() {
	cfg := config.Load()
	log, _ := zap.NewProduction()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	repo := storage.New(db)
	store := queue.New(rdb)

	cache := priority.NewFeaturedCache(repo, cfg.FeaturedRefreshInterval, log)
	if err := cache.Refresh(ctx); err != nil {
		log.Warn("initial featured refresh failed, starting with empty set", zap.Error(err))
	}
	resolver := priority.NewResolver(cache)
	svc := queue.NewService(store, resolver, log)

	source := youtube.NewClient(cfg.YouTubeBaseURL, cfg.YouTubeAPIKey, log)

	promoter := pipeline.NewPromoter(repo, log)
	syncHandlers := map[string]worker.Handler{
		domain.TypeSyncBand: pipeline.NewSyncer(repo, source, log),
	}
	processingHandlers := map[string]worker.Handler{
		domain.TypeProcessVideo:  pipeline.NewVideoProcessor(repo, promoter, log),
		domain.TypePromoteVideos: promoter,
		domain.TypeMatchVideos:   pipeline.NewMatcher(repo, log),
	}
	maintenanceHandlers := map[string]worker.Handler{
		domain.TypeSyncAllBands:  pipeline.NewFanOut(repo, svc, log),
		domain.TypeCleanupVideos: pipeline.NewCleaner(repo, log),
		domain.TypeUpdateStats:   pipeline.NewStatsProcessor(repo, log),
	}

	pools := []*worker.Pool{
		worker.NewPool(store, domain.QueueSync, syncHandlers, cfg.SyncConcurrency, cfg.JobTimeout, log),
		worker.NewPool(store, domain.QueueProcessing, processingHandlers, cfg.ProcessingConcurrency, cfg.JobTimeout, log),
		worker.NewPool(store, domain.QueueMaintenance, maintenanceHandlers, cfg.MaintenanceConcurrency, cfg.JobTimeout, log),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { cache.Run(ctx); return nil })
	for _, p := range pools {
		pool := p
		g.Go(func() error { pool.Run(ctx); return nil })
	}

	log.Info("worker started",
		zap.Int("sync_concurrency", cfg.SyncConcurrency),
		zap.Int("processing_concurrency", cfg.ProcessingConcurrency),
		zap.Int("maintenance_concurrency", cfg.MaintenanceConcurrency))

	if err := g.Wait(); err != nil {
		log.Fatal("worker exited", zap.Error(err))
	}
}

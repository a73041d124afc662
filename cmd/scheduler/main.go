// The scheduler binary owns the fixed-cadence triggers and the featured
// cache refresh loop. Exactly one instance should run per environment.
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
	"github.com/JFenderson/BandHub-sub007/internal/priority"
	"github.com/JFenderson/BandHub-sub007/internal/queue"
	"github.com/JFenderson/BandHub-sub007/internal/scheduler"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
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
	// the scheduler is not ready until the first snapshot is in
	if err := cache.Refresh(ctx); err != nil {
		log.Warn("initial featured refresh failed, starting with empty set", zap.Error(err))
	}

	resolver := priority.NewResolver(cache)
	svc := queue.NewService(store, resolver, log)
	sched := scheduler.New(svc, store, cfg, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { cache.Run(ctx); return nil })
	g.Go(func() error { return sched.Start(ctx) })

	if err := g.Wait(); err != nil {
		log.Fatal("scheduler exited", zap.Error(err))
	}
}

// The api binary is the read-only admin surface: priority distribution
// and queue depth as JSON, plus the prometheus scrape endpoint.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JFenderson/BandHub-sub007/internal/config"
	"github.com/JFenderson/BandHub-sub007/internal/metrics"
	"github.com/JFenderson/BandHub-sub007/internal/queue"
)

func main() {
	cfg := config.Load()
	log, _ := zap.NewProduction()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	store := queue.New(rdb)

	reg := prometheus.NewRegistry()
	reporter := metrics.NewReporter(store, reg)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: metrics.Router(reporter, store, reg, log),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("admin api listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// keep the prometheus gauges warm between scrapes
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if _, err := reporter.PriorityMetrics(ctx); err != nil && ctx.Err() == nil {
					log.Warn("gauge refresh failed", zap.Error(err))
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

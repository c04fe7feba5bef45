package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/store"
)

type pruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	_ = godotenv.Load()
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, ok := connect(ctx, log, cfg)
	if !ok {
		os.Exit(1)
	}
	defer st.Close()

	log.Info("connected to store", slog.String("backend", cfg.StoreBackend))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	runOnce(ctx, log, st, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, st, cfg)
		}
	}
}

// connect opens the store, retrying with exponential backoff while the
// backend comes up.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Retention) (store.Store, bool) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		st, err := store.Open(openCtx, cfg.Common, log)
		if err == nil {
			err = st.Health(openCtx)
			if err != nil {
				st.Close()
			}
		}
		cancel()
		if err == nil {
			return st, true
		}

		log.Warn("store not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			log.Info("shutdown signal received during startup")
			return nil, false
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}

	log.Error("failed to connect to store after retries")
	return nil, false
}

func runOnce(ctx context.Context, log *slog.Logger, st pruner, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := st.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old observations found")
	}
}

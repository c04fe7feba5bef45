package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/bakkal-monitor/price-radar/internal/app"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/telemetry"
)

const scheduleZone = "Europe/Istanbul"

func main() {
	_ = godotenv.Load()
	log := logger.New("monitor")
	cfg, err := config.LoadMonitor()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "monitor", log)
	if err != nil {
		log.Warn("tracing disabled", slog.Any("err", err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("init runtime", slog.Any("err", err))
		os.Exit(1)
	}
	defer rt.Close()

	if cfg.Schedule == "" {
		rt.RunOnce(ctx)
		return
	}

	if err := schedule(ctx, log, cfg.Schedule, func() { rt.RunOnce(ctx) }); err != nil {
		log.Error("schedule monitor", slog.Any("err", err))
		os.Exit(1)
	}
}

// schedule runs job on spec until ctx is done. A run still in progress when
// the next tick fires makes that tick a no-op.
func schedule(ctx context.Context, log *slog.Logger, spec string, job func()) error {
	loc, err := time.LoadLocation(scheduleZone)
	if err != nil {
		log.Warn("unknown schedule zone, using UTC", slog.String("zone", scheduleZone), slog.Any("err", err))
		loc = time.UTC
	}

	cl := cronLogger{log: log.With(slog.String("component", "cron"))}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, job); err != nil {
		return err
	}

	c.Start()
	log.Info("monitor scheduled", slog.String("spec", spec), slog.String("zone", loc.String()))

	<-ctx.Done()
	log.Info("shutdown signal received, waiting for running job")
	<-c.Stop().Done()
	return nil
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

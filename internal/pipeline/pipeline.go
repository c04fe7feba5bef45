package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bakkal-monitor/price-radar/internal/collector"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/dedupe"
	"github.com/bakkal-monitor/price-radar/internal/extractor"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/notify"
	"github.com/bakkal-monitor/price-radar/internal/reconcile"
	"github.com/bakkal-monitor/price-radar/internal/telemetry"
)

const summaryTimeout = 30 * time.Second

// RunContext carries everything one monitoring run needs. It is created at
// the start of a run and dropped at the end.
type RunContext struct {
	ID         string
	Config     *config.Monitor
	Store      reconcile.PriceStore
	Notifier   notify.Notifier
	Extractor  extractor.Extractor
	Collectors []collector.Collector
	Log        *slog.Logger
	Now        func() time.Time
}

// NewRunContext assembles a run. An empty id gets a fresh uuid.
func NewRunContext(
	id string,
	cfg *config.Monitor,
	store reconcile.PriceStore,
	notifier notify.Notifier,
	ex extractor.Extractor,
	collectors []collector.Collector,
	log *slog.Logger,
) *RunContext {
	if id == "" {
		id = uuid.NewString()
	}
	return &RunContext{
		ID:         id,
		Config:     cfg,
		Store:      store,
		Notifier:   notifier,
		Extractor:  ex,
		Collectors: collectors,
		Log:        log.With(slog.String("run_id", id)),
		Now:        time.Now,
	}
}

// Run collects from every source, deduplicates, reconciles and always sends
// the summary.
func Run(ctx context.Context, rc *RunContext) models.RunSummary {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer span.End()

	started := rc.Now().UTC()
	rc.Log.Info("price monitor starting", slog.Int("sources", len(rc.Collectors)))

	records := Collect(ctx, rc)
	rc.Log.Info("collection finished", slog.Int("unique_products", len(records)))

	engine := &reconcile.Engine{
		Store:      rc.Store,
		Alerts:     rc.Notifier,
		Threshold:  rc.Config.Threshold,
		AlertDelay: rc.Config.AlertDelay,
		RunID:      rc.ID,
		Now:        rc.Now,
		Log:        rc.Log,
	}
	summary := engine.Run(ctx, records)
	summary.StartedAt = started

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()
	rc.Notifier.SendSummary(sctx, summary)

	rc.Log.Info("price monitor finished",
		slog.Int("processed", summary.Processed),
		slog.Int("alerts", summary.Alerts),
		slog.Int("errors", summary.Errors),
		slog.Duration("took", summary.FinishedAt.Sub(started)),
	)
	return summary
}

// Collect runs the collectors one after another and returns the unique valid
// records in collection order. Chunks are extracted as soon as their source
// finishes. A failing source contributes nothing.
func Collect(ctx context.Context, rc *RunContext) []models.ProductRecord {
	var all []models.ProductRecord

	for _, c := range rc.Collectors {
		if ctx.Err() != nil {
			break
		}
		log := rc.Log.With(slog.String("source", c.Name()))

		batch, err := collectOne(ctx, c, rc.Config.CollectTimeout)
		if err != nil {
			log.Error("collector failed", slog.Any("err", err))
			continue
		}

		all = append(all, batch.Records...)
		extracted := 0
		for i, chunk := range batch.Chunks {
			if ctx.Err() != nil {
				break
			}
			log.Debug("extracting chunk", slog.Int("chunk", i+1), slog.Int("of", len(batch.Chunks)))
			recs := rc.Extractor.Extract(ctx, chunk)
			extracted += len(recs)
			all = append(all, recs...)
		}

		log.Info("source collected",
			slog.Int("records", len(batch.Records)),
			slog.Int("chunks", len(batch.Chunks)),
			slog.Int("extracted", extracted),
		)
	}

	unique := dedupe.Filter(all)
	rc.Log.Info("deduplicated", slog.Int("candidates", len(all)), slog.Int("unique", len(unique)))
	return unique
}

func collectOne(ctx context.Context, c collector.Collector, timeout time.Duration) (collector.Batch, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx, span := telemetry.Tracer().Start(ctx, "collect."+c.Name())
	defer span.End()

	batch, err := c.Collect(ctx)
	if err != nil {
		telemetry.Fail(span, err)
		return collector.Batch{}, err
	}
	return batch, nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bakkal-monitor/price-radar/internal/collector"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/events"
	"github.com/bakkal-monitor/price-radar/internal/extractor"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/notify"
	"github.com/bakkal-monitor/price-radar/internal/pipeline"
	"github.com/bakkal-monitor/price-radar/internal/store"
	"github.com/bakkal-monitor/price-radar/internal/telegram"
)

// Runtime holds the long lived clients of the monitor. Each RunOnce builds
// a fresh RunContext on top of them.
type Runtime struct {
	cfg        *config.Monitor
	store      store.Store
	extractor  extractor.Extractor
	collectors []collector.Collector
	telegram   *telegram.Notifier
	publisher  *events.Publisher
	email      *notify.Email
	log        *slog.Logger

	storeReady atomic.Bool
}

const prepareTimeout = 15 * time.Second

// New builds every client the monitor needs. An unreachable store does not
// fail it: the index or schema is prepared again before each run, and until
// then lookups fall back to first sightings and writes count as run errors.
func New(ctx context.Context, cfg *config.Monitor, log *slog.Logger) (*Runtime, error) {
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	st, err := store.Dial(ctx, cfg.Common, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	r := &Runtime{
		cfg:   cfg,
		store: st,
		extractor: extractor.NewOpenAI(extractor.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Delay:   cfg.ExtractDelay,
		}, log.With(slog.String("component", "extractor"))),
		collectors: BuildCollectors(cfg, sources, log),
		telegram: telegram.NewNotifier(
			telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.Timeout),
			cfg.Telegram.ChatID,
			log.With(slog.String("component", "telegram")),
		),
		email: notify.NewEmail(cfg.SMTP, log.With(slog.String("component", "email"))),
		log:   log,
	}
	if cfg.Notifier == config.NotifierKafka {
		r.publisher = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, log.With(slog.String("component", "events")))
	}
	r.prepareStore(ctx)
	return r, nil
}

// BuildCollectors creates the enabled collectors in their fixed order:
// marketfiyati, cimri, essen, bizimtoptan.
func BuildCollectors(cfg *config.Monitor, src config.Sources, log *slog.Logger) []collector.Collector {
	pageOpts := collector.HTTPOptions{
		Timeout:        cfg.HTTPTimeout,
		Delay:          cfg.PageDelay,
		RenderEndpoint: cfg.RenderEndpoint,
	}

	var out []collector.Collector
	if !src.Marketfiyati.Disabled {
		out = append(out, collector.NewMarketfiyati(collector.MarketfiyatiConfig{
			Endpoint:     src.Marketfiyati.Endpoint,
			Keywords:     src.Marketfiyati.Keywords,
			Lat:          cfg.ShopLat,
			Lon:          cfg.ShopLon,
			Distance:     cfg.SearchDistance,
			Size:         cfg.SearchSize,
			ChunkSize:    cfg.ChunkSize,
			KeywordDelay: cfg.KeywordDelay,
			Timeout:      cfg.HTTPTimeout,
		}, log.With(slog.String("source", "marketfiyati"))))
	}
	if !src.Cimri.Disabled {
		out = append(out, collector.NewCimri(src.Cimri.URLs, cfg.ChunkSize, pageOpts, log.With(slog.String("source", "cimri"))))
	}
	if !src.Essen.Disabled {
		out = append(out, collector.NewEssen(src.Essen.URLs, pageOpts, log))
	}
	if !src.BizimToptan.Disabled {
		out = append(out, collector.NewBizimToptan(src.BizimToptan.URLs, pageOpts, log))
	}
	return out
}

// Store exposes the opened store.
func (r *Runtime) Store() store.Store { return r.store }

// RunOnce performs one complete monitoring run.
func (r *Runtime) RunOnce(ctx context.Context) models.RunSummary {
	r.prepareStore(ctx)
	id := uuid.NewString()
	rc := pipeline.NewRunContext(id, r.cfg, r.store, r.notifierFor(id), r.extractor, r.collectors, r.log)
	return pipeline.Run(ctx, rc)
}

func (r *Runtime) prepareStore(ctx context.Context) {
	if r.storeReady.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, prepareTimeout)
	defer cancel()
	if err := store.Prepare(ctx, r.store); err != nil {
		r.log.Warn("store not ready", slog.Any("err", err))
		return
	}
	r.storeReady.Store(true)
}

func (r *Runtime) notifierFor(runID string) notify.Notifier {
	var primary notify.Notifier = r.telegram
	if r.publisher != nil {
		primary = r.publisher.WithRun(runID)
	}
	if r.email == nil {
		return primary
	}
	return notify.Multi{primary, r.email}
}

// Close releases the store and the event writer.
func (r *Runtime) Close() {
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			r.log.Warn("close event publisher", slog.Any("err", err))
		}
	}
	r.store.Close()
}

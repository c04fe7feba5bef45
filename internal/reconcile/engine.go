package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
	"github.com/bakkal-monitor/price-radar/internal/telemetry"
)

// PriceStore is the persistence the engine needs.
type PriceStore interface {
	LastPrice(ctx context.Context, productURL string) (float64, bool, error)
	UpsertObservation(ctx context.Context, obs models.Observation) error
}

// AlertSender delivers a drop alert and reports delivery.
type AlertSender interface {
	SendAlert(ctx context.Context, rec models.ProductRecord, previous, dropPct float64) bool
}

// State is a step of the per-record lifecycle.
type State string

const (
	Collected  State = "collected"
	Validated  State = "validated"
	NotFound   State = "not_found"
	Compared   State = "compared"
	Alerted    State = "alerted"
	NotAlerted State = "not_alerted"
	Persisted  State = "persisted"
	Error      State = "error"
)

// Outcome describes what happened to one record.
type Outcome struct {
	Path        []State
	Observation models.Observation
	// AlertFired is true when the drop met the threshold.
	AlertFired bool
	Delivered  bool
	Err        error
}

// Final returns the terminal state.
func (o Outcome) Final() State {
	if len(o.Path) == 0 {
		return Collected
	}
	return o.Path[len(o.Path)-1]
}

// Engine compares each record with its last stored price, alerts on drops
// of at least Threshold percent and persists the observation.
type Engine struct {
	Store     PriceStore
	Alerts    AlertSender
	Threshold float64
	// AlertDelay pauses after each alert attempt.
	AlertDelay time.Duration
	RunID      string
	Now        func() time.Time
	Log        *slog.Logger
}

// Process runs one record through the lifecycle. The threshold is compared
// against the unrounded drop; the persisted drop is rounded to 2 decimals.
func (e *Engine) Process(ctx context.Context, rec models.ProductRecord) Outcome {
	out := Outcome{Path: []State{Collected}}

	if !rec.Valid() {
		out.Path = append(out.Path, Error)
		out.Err = fmt.Errorf("invalid record: url=%q price=%v", rec.ProductURL, rec.CurrentPrice)
		return out
	}
	out.Path = append(out.Path, Validated)

	ctx, span := telemetry.Tracer().Start(ctx, "reconcile.process")
	defer span.End()
	span.SetAttributes(attribute.String("product_url", rec.ProductURL))

	now := e.now().UTC()
	date := processing.ObservedDate(now)
	obs := models.Observation{
		ID:           processing.BuildObservationID(rec.ProductURL, date),
		ProductURL:   rec.ProductURL,
		ProductName:  rec.ProductName,
		MarketName:   rec.MarketName,
		CurrentPrice: rec.CurrentPrice,
		ObservedDate: date,
		ObservedAt:   now,
		RunID:        e.RunID,
	}

	last, found, err := e.Store.LastPrice(ctx, rec.ProductURL)
	if err != nil {
		e.Log.Warn("last price lookup failed, treating as first sighting",
			slog.String("url", rec.ProductURL), slog.Any("err", err))
		found = false
	}

	if !found {
		out.Path = append(out.Path, NotFound, NotAlerted)
	} else {
		out.Path = append(out.Path, Compared)
		prev := last
		obs.PreviousPrice = &prev

		drop, ok := processing.DropPercent(last, rec.CurrentPrice)
		if ok {
			rounded := processing.RoundPercent(drop)
			obs.PriceDropPct = &rounded
		}

		if ok && drop >= e.Threshold {
			out.AlertFired = true
			out.Path = append(out.Path, Alerted)
			e.Log.Info("price drop detected",
				slog.String("product", rec.ProductName),
				slog.Float64("previous", last),
				slog.Float64("current", rec.CurrentPrice),
				slog.Float64("drop_pct", processing.RoundPercent(drop)),
			)
			out.Delivered = e.Alerts.SendAlert(ctx, rec, last, drop)
			if !out.Delivered {
				e.Log.Warn("alert not delivered", slog.String("url", rec.ProductURL))
			}
			if e.AlertDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(e.AlertDelay):
				}
			}
		} else {
			out.Path = append(out.Path, NotAlerted)
		}
	}

	out.Observation = obs
	if err := e.Store.UpsertObservation(ctx, obs); err != nil {
		telemetry.Fail(span, err)
		out.Path = append(out.Path, Error)
		out.Err = fmt.Errorf("persist observation: %w", err)
		return out
	}
	out.Path = append(out.Path, Persisted)
	return out
}

// Run processes records in order and returns the counters. It stops early
// only when ctx is done.
func (e *Engine) Run(ctx context.Context, records []models.ProductRecord) models.RunSummary {
	summary := models.RunSummary{RunID: e.RunID, StartedAt: e.now().UTC()}

	for _, rec := range records {
		if ctx.Err() != nil {
			e.Log.Warn("reconciliation interrupted", slog.Any("err", ctx.Err()))
			break
		}

		out := e.Process(ctx, rec)
		if rec.Valid() {
			summary.Processed++
		}
		if out.Delivered {
			summary.Alerts++
		}
		if out.Err != nil {
			summary.Errors++
			e.Log.Error("record failed", slog.String("url", rec.ProductURL), slog.Any("err", out.Err))
		}
	}

	summary.FinishedAt = e.now().UTC()
	return summary
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

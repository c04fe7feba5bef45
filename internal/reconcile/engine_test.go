package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
)

type memStore struct {
	last      map[string]float64
	lookupErr error
	upsertErr error
	upserts   []models.Observation
}

func (m *memStore) LastPrice(_ context.Context, url string) (float64, bool, error) {
	if m.lookupErr != nil {
		return 0, false, m.lookupErr
	}
	p, ok := m.last[url]
	return p, ok, nil
}

func (m *memStore) UpsertObservation(_ context.Context, obs models.Observation) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts = append(m.upserts, obs)
	return nil
}

type alertLog struct {
	fail  bool
	drops []float64
}

func (a *alertLog) SendAlert(_ context.Context, _ models.ProductRecord, _, drop float64) bool {
	a.drops = append(a.drops, drop)
	return !a.fail
}

var fixedNow = time.Date(2024, 6, 10, 21, 30, 0, 0, time.UTC)

func newEngine(store *memStore, alerts *alertLog) *Engine {
	return &Engine{
		Store:     store,
		Alerts:    alerts,
		Threshold: 5.0,
		RunID:     "run-test",
		Now:       func() time.Time { return fixedNow },
		Log:       logger.Discard(),
	}
}

func rec(url string, price float64) models.ProductRecord {
	return models.ProductRecord{ProductName: "Ürün", CurrentPrice: price, MarketName: "BIM", ProductURL: url}
}

func TestDropAboveThresholdAlerts(t *testing.T) {
	store := &memStore{last: map[string]float64{"u": 100}}
	alerts := &alertLog{}
	out := newEngine(store, alerts).Process(context.Background(), rec("u", 90))

	require.NoError(t, out.Err)
	require.True(t, out.AlertFired)
	require.True(t, out.Delivered)
	require.Equal(t, []State{Collected, Validated, Compared, Alerted, Persisted}, out.Path)
	require.Len(t, store.upserts, 1)

	obs := store.upserts[0]
	require.Equal(t, 100.0, *obs.PreviousPrice)
	require.Equal(t, 10.0, *obs.PriceDropPct)
	require.Equal(t, "2024-06-10", obs.ObservedDate)
	require.Equal(t, "run-test", obs.RunID)
	require.InDelta(t, 10.0, alerts.drops[0], 1e-9)
}

func TestDropBelowThresholdStillPersisted(t *testing.T) {
	store := &memStore{last: map[string]float64{"u": 100}}
	alerts := &alertLog{}
	out := newEngine(store, alerts).Process(context.Background(), rec("u", 96))

	require.False(t, out.AlertFired)
	require.Empty(t, alerts.drops)
	require.Equal(t, Persisted, out.Final())
	require.Equal(t, 4.0, *store.upserts[0].PriceDropPct)
}

func TestThresholdUsesUnroundedDrop(t *testing.T) {
	// 1000 -> 950.04 is a 4.996% drop, persisted as 5.00 but below the 5% threshold.
	store := &memStore{last: map[string]float64{"u": 1000}}
	alerts := &alertLog{}
	out := newEngine(store, alerts).Process(context.Background(), rec("u", 950.04))

	require.False(t, out.AlertFired)
	require.Empty(t, alerts.drops)
	require.Equal(t, 5.0, *store.upserts[0].PriceDropPct)
}

func TestExactThresholdAlerts(t *testing.T) {
	store := &memStore{last: map[string]float64{"u": 200}}
	out := newEngine(store, &alertLog{}).Process(context.Background(), rec("u", 190))
	require.True(t, out.AlertFired)
}

func TestFirstSightingNeverAlerts(t *testing.T) {
	store := &memStore{last: map[string]float64{}}
	alerts := &alertLog{}
	out := newEngine(store, alerts).Process(context.Background(), rec("new", 1))

	require.Equal(t, []State{Collected, Validated, NotFound, NotAlerted, Persisted}, out.Path)
	require.Nil(t, store.upserts[0].PreviousPrice)
	require.Nil(t, store.upserts[0].PriceDropPct)
	require.Empty(t, alerts.drops)
}

func TestPriceIncreaseHasNoDrop(t *testing.T) {
	for _, current := range []float64{100, 120} {
		store := &memStore{last: map[string]float64{"u": 100}}
		out := newEngine(store, &alertLog{}).Process(context.Background(), rec("u", current))

		require.False(t, out.AlertFired)
		require.Equal(t, 100.0, *store.upserts[0].PreviousPrice)
		require.Nil(t, store.upserts[0].PriceDropPct)
	}
}

func TestInvalidRecordIsNotPersisted(t *testing.T) {
	store := &memStore{}
	for _, r := range []models.ProductRecord{rec("", 10), rec("u", 0), rec("u", -3)} {
		out := newEngine(store, &alertLog{}).Process(context.Background(), r)
		require.Error(t, out.Err)
		require.Equal(t, []State{Collected, Error}, out.Path)
	}
	require.Empty(t, store.upserts)
}

func TestLookupFailureDegradesToFirstSighting(t *testing.T) {
	store := &memStore{lookupErr: errors.New("connection refused")}
	out := newEngine(store, &alertLog{}).Process(context.Background(), rec("u", 10))

	require.NoError(t, out.Err)
	require.Equal(t, []State{Collected, Validated, NotFound, NotAlerted, Persisted}, out.Path)
	require.Nil(t, store.upserts[0].PreviousPrice)
}

func TestUndeliveredAlertStillPersists(t *testing.T) {
	store := &memStore{last: map[string]float64{"u": 100}}
	out := newEngine(store, &alertLog{fail: true}).Process(context.Background(), rec("u", 50))

	require.True(t, out.AlertFired)
	require.False(t, out.Delivered)
	require.Equal(t, Persisted, out.Final())
}

func TestRunCounters(t *testing.T) {
	store := &memStore{last: map[string]float64{"a": 100, "b": 100}}
	alerts := &alertLog{}
	e := newEngine(store, alerts)

	summary := e.Run(context.Background(), []models.ProductRecord{
		rec("a", 80), // alert
		rec("b", 99), // small drop
		rec("c", 5),  // first sighting
		rec("", 5),   // invalid
		rec("d", 0),  // invalid
	})

	require.Equal(t, "run-test", summary.RunID)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 1, summary.Alerts)
	require.Equal(t, 2, summary.Errors)
	require.Equal(t, fixedNow, summary.StartedAt)
	require.Len(t, store.upserts, 3)
}

func TestRunCountsPersistenceFailures(t *testing.T) {
	store := &memStore{last: map[string]float64{"a": 100}, upsertErr: errors.New("disk full")}
	summary := newEngine(store, &alertLog{}).Run(context.Background(), []models.ProductRecord{rec("a", 50), rec("b", 10)})

	require.Equal(t, 2, summary.Processed)
	require.Equal(t, 1, summary.Alerts)
	require.Equal(t, 2, summary.Errors)
}

func TestSameDayRerunUpsertsSameKey(t *testing.T) {
	store := &memStore{last: map[string]float64{"u": 100}}
	e := newEngine(store, &alertLog{})

	e.Run(context.Background(), []models.ProductRecord{rec("u", 98)})
	e.Run(context.Background(), []models.ProductRecord{rec("u", 98)})

	require.Len(t, store.upserts, 2)
	require.Equal(t, store.upserts[0].ID, store.upserts[1].ID)
	require.Equal(t, store.upserts[0].ObservedDate, store.upserts[1].ObservedDate)
}

func TestRunStopsWhenCanceled(t *testing.T) {
	store := &memStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := newEngine(store, &alertLog{}).Run(ctx, []models.ProductRecord{rec("a", 1)})
	require.Zero(t, summary.Processed)
	require.Empty(t, store.upserts)
}

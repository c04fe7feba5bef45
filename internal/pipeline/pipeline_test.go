package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/collector"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/extractor"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
)

type staticCollector struct {
	name  string
	batch collector.Batch
	err   error
	calls int
}

func (s *staticCollector) Name() string { return s.name }

func (s *staticCollector) Collect(context.Context) (collector.Batch, error) {
	s.calls++
	return s.batch, s.err
}

type memStore struct {
	last    map[string]float64
	upserts []models.Observation
}

func (m *memStore) LastPrice(_ context.Context, url string) (float64, bool, error) {
	p, ok := m.last[url]
	return p, ok, nil
}

func (m *memStore) UpsertObservation(_ context.Context, obs models.Observation) error {
	m.upserts = append(m.upserts, obs)
	return nil
}

type captureNotifier struct {
	alerts    []models.ProductRecord
	summaries []models.RunSummary
}

func (c *captureNotifier) SendAlert(_ context.Context, rec models.ProductRecord, _, _ float64) bool {
	c.alerts = append(c.alerts, rec)
	return true
}

func (c *captureNotifier) SendSummary(_ context.Context, s models.RunSummary) {
	c.summaries = append(c.summaries, s)
}

func newRun(store *memStore, n *captureNotifier, ex extractor.Extractor, cs ...collector.Collector) *RunContext {
	rc := NewRunContext("run-1", &config.Monitor{Threshold: 5}, store, n, ex, cs, logger.Discard())
	rc.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return rc
}

func rec(url string, price float64) models.ProductRecord {
	return models.ProductRecord{ProductName: "p", CurrentPrice: price, MarketName: "m", ProductURL: url}
}

func TestFirstCollectedPriceWins(t *testing.T) {
	store := &memStore{last: map[string]float64{}}
	n := &captureNotifier{}
	first := &staticCollector{name: "first", batch: collector.Batch{Records: []models.ProductRecord{rec("u", 10)}}}
	second := &staticCollector{name: "second", batch: collector.Batch{Records: []models.ProductRecord{rec("u", 7), rec("v", 3)}}}

	summary := Run(context.Background(), newRun(store, n, &extractor.Fake{}, first, second))

	require.Equal(t, 2, summary.Processed)
	require.Len(t, store.upserts, 2)
	require.Equal(t, "u", store.upserts[0].ProductURL)
	require.Equal(t, 10.0, store.upserts[0].CurrentPrice)
	require.Equal(t, "run-1", store.upserts[0].RunID)
	require.Len(t, n.summaries, 1)
}

func TestFailingCollectorIsIsolated(t *testing.T) {
	store := &memStore{last: map[string]float64{"ok": 100}}
	n := &captureNotifier{}
	broken := &staticCollector{
		name:  "broken",
		batch: collector.Batch{Records: []models.ProductRecord{rec("ignored", 1)}},
		err:   errors.New("403 forbidden"),
	}
	healthy := &staticCollector{name: "healthy", batch: collector.Batch{Records: []models.ProductRecord{rec("ok", 80)}}}

	summary := Run(context.Background(), newRun(store, n, &extractor.Fake{}, broken, healthy))

	require.Equal(t, 1, broken.calls)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Alerts)
	require.Zero(t, summary.Errors)
	require.Len(t, n.alerts, 1)
	require.Equal(t, summary, n.summaries[0])
}

func TestChunksAreExtractedInOrder(t *testing.T) {
	store := &memStore{}
	ex := &extractor.Fake{Records: []models.ProductRecord{rec("x", 5), rec("", 5)}}
	src := &staticCollector{name: "pages", batch: collector.Batch{
		Records: []models.ProductRecord{rec("a", 1)},
		Chunks:  []models.RawChunk{{Content: "one"}, {Content: "two"}},
	}}

	got := Collect(context.Background(), newRun(store, &captureNotifier{}, ex, src))

	require.Equal(t, 2, ex.Calls)
	if diff := cmp.Diff([]models.ProductRecord{rec("a", 1), rec("x", 5)}, got); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestSummarySentWhenNothingCollected(t *testing.T) {
	n := &captureNotifier{}
	summary := Run(context.Background(), newRun(&memStore{}, n, &extractor.Fake{}))

	require.Zero(t, summary.Processed)
	require.Len(t, n.summaries, 1)
	require.Equal(t, "run-1", n.summaries[0].RunID)
}

func TestNewRunContextGeneratesID(t *testing.T) {
	rc := NewRunContext("", &config.Monitor{}, &memStore{}, &captureNotifier{}, &extractor.Fake{}, nil, logger.Discard())
	require.Len(t, rc.ID, 36)
}

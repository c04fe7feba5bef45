package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/collector"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/events"
	"github.com/bakkal-monitor/price-radar/internal/extractor"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/notify"
	"github.com/bakkal-monitor/price-radar/internal/store"
	"github.com/bakkal-monitor/price-radar/internal/telegram"
)

func names(t *testing.T, cfg *config.Monitor, src config.Sources) []string {
	t.Helper()
	var out []string
	for _, c := range BuildCollectors(cfg, src, logger.Discard()) {
		out = append(out, c.Name())
	}
	return out
}

func TestBuildCollectorsOrder(t *testing.T) {
	cfg := &config.Monitor{ChunkSize: 8000}
	require.Equal(t, []string{"marketfiyati", "cimri", "essen", "bizimtoptan"}, names(t, cfg, config.DefaultSources()))
}

func TestBuildCollectorsSkipsDisabled(t *testing.T) {
	src := config.DefaultSources()
	src.Cimri.Disabled = true
	src.Marketfiyati.Disabled = true
	require.Equal(t, []string{"essen", "bizimtoptan"}, names(t, &config.Monitor{}, src))
}

func TestNotifierSelection(t *testing.T) {
	tg := telegram.NewNotifier(telegram.NewClient("http://localhost", "t", 0), "1", logger.Discard())
	r := &Runtime{telegram: tg, log: logger.Discard()}
	require.Same(t, tg, r.notifierFor("run"))

	r.publisher = events.NewPublisher([]string{"localhost:9092"}, "price_alerts", logger.Discard())
	_, isPublisher := r.notifierFor("run").(*events.Publisher)
	require.True(t, isPublisher)

	r.email = notify.NewEmail(config.SMTP{Addr: "smtp:25", To: []string{"a@b.c"}}, logger.Discard())
	multi, ok := r.notifierFor("run").(notify.Multi)
	require.True(t, ok)
	require.Len(t, multi, 2)
}

type fixedCollector []models.ProductRecord

func (fixedCollector) Name() string { return "fixed" }

func (f fixedCollector) Collect(context.Context) (collector.Batch, error) {
	return collector.Batch{Records: f}, nil
}

func TestRunOnceWithUnreachableStoreStillReports(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			mu.Lock()
			sent = append(sent, body.Text)
			mu.Unlock()
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":1}}}`))
	}))
	defer tg.Close()

	cfg := &config.Monitor{
		Common: config.Common{
			StoreBackend:       config.BackendElasticsearch,
			ElasticsearchAddr:  "http://127.0.0.1:1",
			ElasticsearchIndex: "price_history",
		},
		Threshold: 5,
	}
	st, err := store.Dial(context.Background(), cfg.Common, logger.Discard())
	require.NoError(t, err)

	r := &Runtime{
		cfg:       cfg,
		store:     st,
		extractor: &extractor.Fake{},
		collectors: []collector.Collector{fixedCollector{
			{ProductName: "Süt 1L", CurrentPrice: 32.5, MarketName: "BIM", ProductURL: "https://example.com/sut"},
			{ProductName: "Ekmek", CurrentPrice: 10, MarketName: "A101", ProductURL: "https://example.com/ekmek"},
		}},
		telegram: telegram.NewNotifier(telegram.NewClient(tg.URL, "t", time.Second), "1", logger.Discard()),
		log:      logger.Discard(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	summary := r.RunOnce(ctx)

	require.Equal(t, 2, summary.Processed)
	require.Equal(t, summary.Processed, summary.Errors)
	require.Zero(t, summary.Alerts)
	require.False(t, r.storeReady.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
}

package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

type fakeES struct {
	mu       sync.Mutex
	requests []recorded
	respond  func(r *http.Request, body string) (int, string)
}

type recorded struct {
	Method string
	Path   string
	Body   string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Body: string(data)})
	f.mu.Unlock()

	status, body := f.respond(r, string(data))
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T, respond func(r *http.Request, body string) (int, string)) (*Client, *fakeES) {
	t.Helper()
	fake := &fakeES{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "price_history", nil)
	require.NoError(t, err)
	return c, fake
}

func TestLastPriceFound(t *testing.T) {
	c, fake := newTestClient(t, func(r *http.Request, _ string) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[{"_source":{"product_url":"u1","current_price":99.5}}]}}`
	})

	price, ok, err := c.LastPrice(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 99.5, price)

	require.Len(t, fake.requests, 1)
	require.Equal(t, "/price_history/_search", fake.requests[0].Path)
	require.Contains(t, fake.requests[0].Body, `"product_url":"u1"`)
	require.Contains(t, fake.requests[0].Body, `"observed_at"`)
}

func TestLastPriceAbsent(t *testing.T) {
	c, _ := newTestClient(t, func(r *http.Request, _ string) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[]}}`
	})

	price, ok, err := c.LastPrice(context.Background(), "new")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, price)
}

func TestLastPriceSearchError(t *testing.T) {
	c, _ := newTestClient(t, func(r *http.Request, _ string) (int, string) {
		return http.StatusInternalServerError, `{"error":"boom"}`
	})

	_, _, err := c.LastPrice(context.Background(), "u1")
	require.ErrorContains(t, err, "search failed")
}

func TestUpsertObservationUsesDeterministicID(t *testing.T) {
	c, fake := newTestClient(t, func(r *http.Request, _ string) (int, string) {
		return http.StatusCreated, `{"result":"created"}`
	})

	prev := 100.0
	drop := 10.0
	obs := models.Observation{
		ID:            "abc123",
		ProductURL:    "u1",
		ProductName:   "Süt",
		MarketName:    "BIM",
		CurrentPrice:  90,
		PreviousPrice: &prev,
		PriceDropPct:  &drop,
		ObservedDate:  "2024-03-01",
		ObservedAt:    time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.UpsertObservation(context.Background(), obs))
	require.NoError(t, c.UpsertObservation(context.Background(), obs))

	require.Len(t, fake.requests, 2)
	for _, req := range fake.requests {
		require.Equal(t, http.MethodPut, req.Method)
		require.Equal(t, "/price_history/_doc/abc123", req.Path)

		var stored models.Observation
		require.NoError(t, json.Unmarshal([]byte(req.Body), &stored))
		require.Equal(t, 100.0, *stored.PreviousPrice)
		require.Equal(t, 10.0, *stored.PriceDropPct)
	}
}

func TestMarketsSorted(t *testing.T) {
	c, _ := newTestClient(t, func(r *http.Request, _ string) (int, string) {
		return http.StatusOK, `{"aggregations":{"markets":{"buckets":[{"key":"Migros"},{"key":"BIM"},{"key":"Essen JET"}]}}}`
	})

	markets, err := c.Markets(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"BIM", "Essen JET", "Migros"}, markets)
}

func TestSearchNameDedupesByURL(t *testing.T) {
	c, fake := newTestClient(t, func(r *http.Request, _ string) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[
			{"_source":{"product_url":"u1","product_name":"Süt 1L","current_price":30}},
			{"_source":{"product_url":"u1","product_name":"Süt 1L","current_price":32}},
			{"_source":{"product_url":"u2","product_name":"Süt 500ml","current_price":18}}
		]}}`
	})

	items, err := c.SearchName(context.Background(), "süt*", 50)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 30.0, items[0].CurrentPrice)
	require.True(t, strings.Contains(fake.requests[0].Body, `süt\\*`))
	require.Contains(t, fake.requests[0].Body, `"collapse":{"field":"product_url"}`)
	require.Contains(t, fake.requests[0].Body, `"size":50`)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
)

type fakeStore struct {
	rows      []models.Observation
	healthErr error

	limit   int
	market  string
	minDrop float64
	date    string
}

func (f *fakeStore) Latest(_ context.Context, limit int) ([]models.Observation, error) {
	f.limit = limit
	return f.rows, nil
}

func (f *fakeStore) ByMarket(_ context.Context, market string, limit int) ([]models.Observation, error) {
	f.market, f.limit = market, limit
	return f.rows, nil
}

func (f *fakeStore) History(_ context.Context, _ string, limit int) ([]models.Observation, error) {
	f.limit = limit
	return append([]models.Observation(nil), f.rows...), nil
}

func (f *fakeStore) Drops(_ context.Context, minPct float64, limit int) ([]models.Observation, error) {
	f.minDrop, f.limit = minPct, limit
	return f.rows, nil
}

func (f *fakeStore) Deals(_ context.Context, date string, minPct float64, limit int) ([]models.Observation, error) {
	f.date, f.minDrop, f.limit = date, minPct, limit
	return f.rows, nil
}

func (f *fakeStore) SearchName(context.Context, string, int) ([]models.Observation, error) {
	return f.rows, nil
}

func (f *fakeStore) Markets(context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) Health(context.Context) error { return f.healthErr }

func newServer(st *fakeStore) *server {
	return &server{
		log:     logger.Discard(),
		cfg:     &config.API{DefaultLimit: 100, MaxLimit: 500},
		store:   st,
		trigger: func() bool { return true },
		now:     func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func do(t *testing.T, srv *server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestLatestClampsLimit(t *testing.T) {
	st := &fakeStore{}
	srv := newServer(st)

	rec := do(t, srv, http.MethodGet, "/prices?limit=9999")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 500, st.limit)
	require.JSONEq(t, `[]`, rec.Body.String())

	do(t, srv, http.MethodGet, "/prices?limit=abc")
	require.Equal(t, 100, st.limit)
}

func TestMarketNotFound(t *testing.T) {
	st := &fakeStore{}
	rec := do(t, newServer(st), http.MethodGet, "/prices/Migros")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Migros", st.market)
}

func TestHistoryIsChronological(t *testing.T) {
	st := &fakeStore{rows: []models.Observation{
		{ObservedDate: "2024-06-01"},
		{ObservedDate: "2024-05-31"},
	}}
	rec := do(t, newServer(st), http.MethodGet, "/prices/product/history?url=https://x/p&limit=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 365, st.limit)

	var got []models.Observation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "2024-05-31", got[0].ObservedDate)
	require.Equal(t, "2024-06-01", got[1].ObservedDate)
}

func TestHistoryRequiresURL(t *testing.T) {
	rec := do(t, newServer(&fakeStore{}), http.MethodGet, "/prices/product/history")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsDefaults(t *testing.T) {
	st := &fakeStore{}
	srv := newServer(st)

	do(t, srv, http.MethodGet, "/alerts")
	require.Equal(t, 5.0, st.minDrop)
	require.Equal(t, 50, st.limit)

	do(t, srv, http.MethodGet, "/alerts?min_drop_pct=0&limit=300")
	require.Equal(t, 0.1, st.minDrop)
	require.Equal(t, 200, st.limit)
}

func TestDealsUseToday(t *testing.T) {
	st := &fakeStore{}
	rec := do(t, newServer(st), http.MethodGet, "/deals")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2024-06-01", st.date)
}

func TestHealth(t *testing.T) {
	st := &fakeStore{}
	srv := newServer(st)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health").Code)

	st.healthErr = errors.New("down")
	require.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/health").Code)
}

func TestRunAcceptedOnce(t *testing.T) {
	srv := newServer(&fakeStore{})
	busy := false
	srv.trigger = func() bool {
		if busy {
			return false
		}
		busy = true
		return true
	}

	rec := do(t, srv, http.MethodPost, "/run")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"accepted"`)

	require.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/run").Code)
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 10, clampInt("", 10, 20))
	require.Equal(t, 10, clampInt("-3", 10, 20))
	require.Equal(t, 20, clampInt("50", 10, 20))
	require.Equal(t, 15, clampInt("15", 10, 20))
}

func TestRunnerShutdownCancelsAndWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := newRunner(ctx, logger.Discard())

	started := make(chan struct{})
	var finished atomic.Bool
	r.job = func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}

	require.True(t, r.start())
	<-started
	require.False(t, r.start())

	cancel()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	r.close(closeCtx)

	require.True(t, finished.Load())
	require.False(t, r.running.Load())
}

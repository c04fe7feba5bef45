package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/bakkal-monitor/price-radar/internal/app"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
	"github.com/bakkal-monitor/price-radar/internal/store"
	"github.com/bakkal-monitor/price-radar/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "api", log)
	if err != nil {
		log.Warn("tracing disabled", slog.Any("err", err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := store.Open(ctx, cfg.Common, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	runs := newRunner(ctx, log.With(slog.String("component", "runner")))

	srv := &server{log: log, cfg: cfg, store: st, trigger: runs.start}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
	runs.close(shutdownCtx)
}

type priceStore interface {
	store.Reader
	Health(ctx context.Context) error
}

type server struct {
	log     *slog.Logger
	cfg     *config.API
	store   priceStore
	trigger func() bool
	now     func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

type runResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/markets", s.handleMarkets)
	r.Get("/prices", s.handleLatest)
	r.Get("/prices/product/history", s.handleHistory)
	r.Get("/prices/{market}", s.handleMarket)
	r.Get("/alerts", s.handleAlerts)
	r.Get("/deals", s.handleDeals)
	r.Post("/run", s.handleRun)
	return r
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "Bakkal Price Monitor"})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	markets, err := s.store.Markets(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if markets == nil {
		markets = []string{}
	}
	writeJSON(w, http.StatusOK, markets)
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultLimit, s.cfg.MaxLimit)
	rows, err := s.store.Latest(ctx, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (s *server) handleMarket(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	market := strings.TrimSpace(chi.URLParam(r, "market"))
	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultLimit, s.cfg.MaxLimit)
	rows, err := s.store.ByMarket(ctx, market, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no prices found for market '" + market + "'"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleHistory returns the newest observations of one URL, oldest first.
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})
		return
	}
	limit := clampInt(r.URL.Query().Get("limit"), 30, 365)

	rows, err := s.store.History(ctx, url, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no history found for this product url"})
		return
	}
	slices.Reverse(rows)
	writeJSON(w, http.StatusOK, rows)
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	minDrop := parseMinDrop(r.URL.Query().Get("min_drop_pct"))
	limit := clampInt(r.URL.Query().Get("limit"), 50, 200)
	rows, err := s.store.Drops(ctx, minDrop, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

// handleDeals lists today's drops, biggest first.
func (s *server) handleDeals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	minDrop := parseMinDrop(r.URL.Query().Get("min_drop_pct"))
	limit := clampInt(r.URL.Query().Get("limit"), 10, 200)
	rows, err := s.store.Deals(ctx, processing.ObservedDate(now()), minDrop, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (s *server) handleRun(w http.ResponseWriter, _ *http.Request) {
	if !s.trigger() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a monitoring run is already in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{
		Status:  "accepted",
		Message: "Price monitoring run started in the background. You will receive a summary when it completes.",
	})
}

// runner executes monitoring runs in the background, one at a time. The
// monitor runtime is built on first use so the API starts without the
// monitor's credentials. Runs inherit ctx, so shutdown cancels them.
type runner struct {
	ctx     context.Context
	log     *slog.Logger
	job     func(ctx context.Context)
	running atomic.Bool
	wg      sync.WaitGroup

	mu sync.Mutex
	rt *app.Runtime
}

func newRunner(ctx context.Context, log *slog.Logger) *runner {
	r := &runner{ctx: ctx, log: log}
	r.job = r.monitor
	return r
}

func (r *runner) start() bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		r.job(r.ctx)
	}()
	return true
}

func (r *runner) monitor(ctx context.Context) {
	rt, err := r.runtime(ctx)
	if err != nil {
		r.log.Error("background run failed", slog.Any("err", err))
		return
	}
	summary := rt.RunOnce(ctx)
	r.log.Info("background run finished", slog.String("run_id", summary.RunID), slog.Int("processed", summary.Processed))
}

func (r *runner) runtime(ctx context.Context) (*app.Runtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt != nil {
		return r.rt, nil
	}
	cfg, err := config.LoadMonitor()
	if err != nil {
		return nil, err
	}
	rt, err := app.New(ctx, cfg, r.log)
	if err != nil {
		return nil, err
	}
	r.rt = rt
	return rt, nil
}

// close waits for a run in progress, at most until ctx is done, and then
// releases the runtime.
func (r *runner) close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn("background run still in progress at shutdown")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt != nil {
		r.rt.Close()
		r.rt = nil
	}
}

func parseMinDrop(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 5
	}
	if v < 0.1 {
		return 0.1
	}
	return v
}

func orEmpty(rows []models.Observation) []models.Observation {
	if rows == nil {
		return []models.Observation{}
	}
	return rows
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

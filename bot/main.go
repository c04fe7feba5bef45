package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/bakkal-monitor/price-radar/internal/bot"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/store"
	"github.com/bakkal-monitor/price-radar/internal/telegram"
	"github.com/bakkal-monitor/price-radar/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	log := logger.New("bot")
	cfg, err := config.LoadBot()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "bot", log)
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

	var cursor bot.CursorStore = &bot.MemoryCursor{}
	if cfg.RedisAddr != "" {
		rc, err := bot.NewRedisCursor(ctx, cfg.RedisAddr, cfg.CursorKey)
		if err != nil {
			log.Error("connect redis", slog.Any("err", err))
			os.Exit(1)
		}
		defer rc.Close()
		cursor = rc
	} else {
		log.Warn("REDIS_ADDR not set, update cursor is kept in memory")
	}

	client := telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.Timeout)
	handler := bot.NewHandler(st, cfg.CacheSize, cfg.CacheTTL, log.With(slog.String("component", "handler")))
	b := bot.New(client, cursor, handler, cfg.PollTimeout, log)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           healthRoutes(b),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("health server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server stopped", slog.Any("err", err))
		}
	}()

	if err := b.Run(ctx); err != nil {
		log.Error("bot stopped", slog.Any("err", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown", slog.Any("err", err))
	}
}

type liveness interface {
	Alive() bool
}

func healthRoutes(b liveness) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if b.Alive() {
			_, _ = w.Write([]byte("OK - bot alive"))
			return
		}
		_, _ = w.Write([]byte("STARTING"))
	}
	r.Get("/", health)
	r.Head("/", health)
	r.Get("/health", health)
	return r
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/events"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/telegram"
	"github.com/bakkal-monitor/price-radar/internal/telemetry"
)

const dlqAttempts = 5

// dlqBackoff is the first retry delay of a DLQ write; it doubles per attempt.
var dlqBackoff = time.Second

type messageSender interface {
	SendMessage(ctx context.Context, chatID, text string, opts telegram.SendOptions) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type deliveredSet = expirable.LRU[string, struct{}]

func main() {
	_ = godotenv.Load()
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "worker", log)
	if err != nil {
		log.Warn("tracing disabled", slog.Any("err", err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	tg := telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.Timeout)
	delivered := expirable.NewLRU[string, struct{}](cfg.DedupeCapacity, nil, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.AlertTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	defer reader.Close()

	dlqTopic := cfg.AlertTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.Brokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.AlertTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, tg, delivered, cfg.Telegram.ChatID, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				// Left uncommitted so the message is fetched again after a restart.
				if ctx.Err() != nil {
					return
				}
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage delivers one alert topic event. Events already delivered
// within the dedupe window are acknowledged without sending again.
func processMessage(ctx context.Context, log *slog.Logger, sender messageSender, delivered *deliveredSet, chatID string, msg kafka.Message) error {
	ev, err := events.Decode(msg.Value)
	if err != nil {
		return err
	}
	if delivered.Contains(ev.ID) {
		log.Debug("duplicate event", slog.String("id", ev.ID))
		return nil
	}

	text := render(ev)
	opts := telegram.SendOptions{ParseMode: "HTML", DisablePreview: ev.Kind == models.EventSummary}
	if err := sender.SendMessage(ctx, chatID, text, opts); err != nil {
		return fmt.Errorf("deliver %s event: %w", ev.Kind, err)
	}

	delivered.Add(ev.ID, struct{}{})
	log.Info("event delivered",
		slog.String("id", ev.ID),
		slog.String("kind", ev.Kind),
		slog.String("run_id", ev.RunID),
	)
	return nil
}

func render(ev models.Event) string {
	if ev.Kind == models.EventAlert {
		return telegram.FormatAlert(ev.Alert.Record, ev.Alert.PreviousPrice, ev.Alert.DropPct)
	}
	at := ev.Summary.FinishedAt
	if at.IsZero() {
		at = ev.OccurredAt
	}
	return telegram.FormatSummary(*ev.Summary, at)
}

// sendToDLQ copies msg to the dead letter topic with the failure attached,
// retrying with exponential backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		err := w.WriteMessages(ctx, dlqMsg)
		if err == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := dlqBackoff << uint(attempt)
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}

	log.Error("DLQ write exhausted retries",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher puts alert and summary events on the alert topic. The worker
// turns them into Telegram messages.
type Publisher struct {
	w     messageWriter
	runID string
	log   *slog.Logger
	now   func() time.Time
}

// NewPublisher builds a publisher writing to topic.
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: int(kafka.RequireAll),
	})
	return &Publisher{w: w, log: log, now: time.Now}
}

// WithRun returns a publisher stamping events with runID. It shares the
// underlying writer.
func (p *Publisher) WithRun(runID string) *Publisher {
	cp := *p
	cp.runID = runID
	return &cp
}

// SendAlert reports whether the broker acknowledged the event.
func (p *Publisher) SendAlert(ctx context.Context, rec models.ProductRecord, previous, dropPct float64) bool {
	ev := p.envelope(models.EventAlert)
	ev.Alert = &models.AlertEvent{Record: rec, PreviousPrice: previous, DropPct: dropPct}
	if err := p.publish(ctx, rec.ProductURL, ev); err != nil {
		p.log.Error("publish alert", slog.String("url", rec.ProductURL), slog.Any("err", err))
		return false
	}
	return true
}

func (p *Publisher) SendSummary(ctx context.Context, s models.RunSummary) {
	ev := p.envelope(models.EventSummary)
	ev.Summary = &s
	if err := p.publish(ctx, ev.RunID, ev); err != nil {
		p.log.Error("publish summary", slog.Any("err", err))
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func (p *Publisher) envelope(kind string) models.Event {
	return models.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		RunID:      p.runID,
		OccurredAt: p.now().UTC(),
	}
}

func (p *Publisher) publish(ctx context.Context, key string, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	})
}

// Decode parses and validates an event from the topic.
func Decode(data []byte) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	switch ev.Kind {
	case models.EventAlert:
		if ev.Alert == nil {
			return ev, errors.New("alert event without payload")
		}
	case models.EventSummary:
		if ev.Summary == nil {
			return ev, errors.New("summary event without payload")
		}
	default:
		return ev, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.ID == "" {
		return ev, errors.New("event without id")
	}
	return ev, nil
}

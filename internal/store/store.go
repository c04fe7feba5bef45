package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/elasticsearch"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/postgres"
)

// Reader is the read side used by the API, the bot and pricectl.
type Reader interface {
	Latest(ctx context.Context, limit int) ([]models.Observation, error)
	ByMarket(ctx context.Context, market string, limit int) ([]models.Observation, error)
	History(ctx context.Context, productURL string, limit int) ([]models.Observation, error)
	Drops(ctx context.Context, minPct float64, limit int) ([]models.Observation, error)
	Deals(ctx context.Context, date string, minPct float64, limit int) ([]models.Observation, error)
	SearchName(ctx context.Context, term string, limit int) ([]models.Observation, error)
	Markets(ctx context.Context) ([]string, error)
}

// Store is a price history backend.
type Store interface {
	Reader
	LastPrice(ctx context.Context, productURL string) (float64, bool, error)
	UpsertObservation(ctx context.Context, obs models.Observation) error
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	Health(ctx context.Context) error
	Close()
}

var (
	_ Store = (*elasticsearch.Client)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, cfg config.Common, log *slog.Logger) (Store, error) {
	st, err := Dial(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := Prepare(ctx, st); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// Dial builds the configured backend without talking to it. Only invalid
// configuration fails here; an unreachable server shows up on first use.
func Dial(ctx context.Context, cfg config.Common, log *slog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := postgres.New(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.BackendElasticsearch, "":
		es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			return nil, err
		}
		return es, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Prepare creates the index or schema st needs. It is safe to call again.
func Prepare(ctx context.Context, st Store) error {
	switch s := st.(type) {
	case *postgres.Store:
		return s.EnsureSchema(ctx)
	case *elasticsearch.Client:
		return s.EnsureIndex(ctx)
	default:
		return nil
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		product_url  TEXT PRIMARY KEY,
		product_name TEXT NOT NULL,
		market_name  TEXT NOT NULL,
		latest_price DOUBLE PRECISION NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id             TEXT PRIMARY KEY,
		product_url    TEXT NOT NULL,
		product_name   TEXT NOT NULL,
		market_name    TEXT NOT NULL,
		current_price  DOUBLE PRECISION NOT NULL,
		previous_price DOUBLE PRECISION,
		price_drop_pct DOUBLE PRECISION,
		observed_date  DATE NOT NULL,
		observed_at    TIMESTAMPTZ NOT NULL,
		run_id         TEXT,
		UNIQUE (product_url, observed_date)
	)`,
	`CREATE INDEX IF NOT EXISTS price_history_url_at ON price_history (product_url, observed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS price_history_date_drop ON price_history (observed_date, price_drop_pct DESC)`,
}

const observationColumns = `id, product_url, product_name, market_name, current_price,
	previous_price, price_drop_pct, observed_date::text, observed_at, COALESCE(run_id, '')`

// Store keeps observations in PostgreSQL. The (product_url, observed_date)
// unique key makes same-day writes overwrite.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	s, err := New(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	if err := s.pool.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// New builds the pool without connecting. Connections are made on first use.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{pool: pool, log: logger}, nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	b := &pgx.Batch{}
	for _, stmt := range schema {
		b.Queue(stmt)
	}
	br := s.pool.SendBatch(ctx, b)
	for range schema {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return br.Close()
}

// UpsertObservation writes the daily row, then refreshes the product master
// row. Only the daily row is required to succeed.
func (s *Store) UpsertObservation(ctx context.Context, obs models.Observation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_history
			(id, product_url, product_name, market_name, current_price,
			 previous_price, price_drop_pct, observed_date, observed_at, run_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::date,$9,NULLIF($10,''))
		ON CONFLICT (product_url, observed_date) DO UPDATE SET
			product_name   = EXCLUDED.product_name,
			market_name    = EXCLUDED.market_name,
			current_price  = EXCLUDED.current_price,
			previous_price = EXCLUDED.previous_price,
			price_drop_pct = EXCLUDED.price_drop_pct,
			observed_at    = EXCLUDED.observed_at,
			run_id         = EXCLUDED.run_id`,
		obs.ID, obs.ProductURL, obs.ProductName, obs.MarketName, obs.CurrentPrice,
		obs.PreviousPrice, obs.PriceDropPct, obs.ObservedDate, obs.ObservedAt, obs.RunID,
	)
	if err != nil {
		return fmt.Errorf("upsert price_history: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO products (product_url, product_name, market_name, latest_price, last_seen_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (product_url) DO UPDATE SET
			product_name = EXCLUDED.product_name,
			market_name  = EXCLUDED.market_name,
			latest_price = EXCLUDED.latest_price,
			last_seen_at = EXCLUDED.last_seen_at`,
		obs.ProductURL, obs.ProductName, obs.MarketName, obs.CurrentPrice, obs.ObservedAt,
	)
	if err != nil {
		s.log.Warn("products upsert skipped", slog.String("url", obs.ProductURL), slog.Any("err", err))
	}
	return nil
}

// LastPrice returns the most recent price stored for productURL.
func (s *Store) LastPrice(ctx context.Context, productURL string) (float64, bool, error) {
	var price float64
	err := s.pool.QueryRow(ctx, `
		SELECT current_price FROM price_history
		WHERE product_url = $1
		ORDER BY observed_at DESC
		LIMIT 1`, productURL).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select last price: %w", err)
	}
	return price, true, nil
}

// Latest returns the newest observations across all products.
func (s *Store) Latest(ctx context.Context, limit int) ([]models.Observation, error) {
	return s.query(ctx, `SELECT `+observationColumns+` FROM price_history
		ORDER BY observed_at DESC LIMIT $1`, limit)
}

// ByMarket returns the newest observations for a market, matched case-insensitively.
func (s *Store) ByMarket(ctx context.Context, market string, limit int) ([]models.Observation, error) {
	return s.query(ctx, `SELECT `+observationColumns+` FROM price_history
		WHERE lower(market_name) = lower($1)
		ORDER BY observed_at DESC LIMIT $2`, market, limit)
}

// History returns up to limit daily observations for a product, newest first.
func (s *Store) History(ctx context.Context, productURL string, limit int) ([]models.Observation, error) {
	return s.query(ctx, `SELECT `+observationColumns+` FROM price_history
		WHERE product_url = $1
		ORDER BY observed_date DESC LIMIT $2`, productURL, limit)
}

// Drops returns observations whose drop is at least minPct, newest first.
func (s *Store) Drops(ctx context.Context, minPct float64, limit int) ([]models.Observation, error) {
	return s.query(ctx, `SELECT `+observationColumns+` FROM price_history
		WHERE price_drop_pct >= $1
		ORDER BY observed_at DESC LIMIT $2`, minPct, limit)
}

// Deals returns the biggest drops observed on date.
func (s *Store) Deals(ctx context.Context, date string, minPct float64, limit int) ([]models.Observation, error) {
	return s.query(ctx, `SELECT `+observationColumns+` FROM price_history
		WHERE observed_date = $1::date AND price_drop_pct >= $2
		ORDER BY price_drop_pct DESC LIMIT $3`, date, minPct, limit)
}

// SearchName finds products whose name contains term, newest first, one row per URL.
func (s *Store) SearchName(ctx context.Context, term string, limit int) ([]models.Observation, error) {
	return s.query(ctx, `SELECT `+observationColumns+` FROM (
			SELECT DISTINCT ON (product_url) * FROM price_history
			WHERE product_name ILIKE '%' || $1 || '%'
			ORDER BY product_url, observed_at DESC
		) latest
		ORDER BY observed_at DESC LIMIT $2`, escapeLike(strings.TrimSpace(term)), limit)
}

// Markets returns the distinct market names, sorted.
func (s *Store) Markets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT market_name FROM price_history ORDER BY market_name`)
	if err != nil {
		return nil, fmt.Errorf("select markets: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DeleteOlderThan removes observations older than maxAge in batches.
func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	cutoff := time.Now().Add(-maxAge).UTC()
	total := int64(0)
	for {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM price_history WHERE id IN (
				SELECT id FROM price_history WHERE observed_at <= $1 LIMIT $2
			)`, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("delete old observations: %w", err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			return total, nil
		}
	}
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]models.Observation, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	return pgx.CollectRows(rows, scanObservation)
}

func scanObservation(row pgx.CollectableRow) (models.Observation, error) {
	var o models.Observation
	err := row.Scan(
		&o.ID, &o.ProductURL, &o.ProductName, &o.MarketName, &o.CurrentPrice,
		&o.PreviousPrice, &o.PriceDropPct, &o.ObservedDate, &o.ObservedAt, &o.RunID,
	)
	return o, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

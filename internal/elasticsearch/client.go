package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

// Client stores price observations in a single Elasticsearch index.
// Observation ids are deterministic, so indexing doubles as an upsert.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "product_url":    {"type": "keyword"},
      "product_name":   {"type": "text", "fields": {"raw": {"type": "keyword", "ignore_above": 512}}},
      "market_name":    {"type": "keyword"},
      "current_price":  {"type": "double"},
      "previous_price": {"type": "double"},
      "price_drop_pct": {"type": "double"},
      "observed_date":  {"type": "date", "format": "yyyy-MM-dd"},
      "observed_at":    {"type": "date"},
      "run_id":         {"type": "keyword"}
    }
  }
}`

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// another process may have won the race
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// UpsertObservation writes obs under its deterministic id.
func (c *Client) UpsertObservation(ctx context.Context, obs models.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: obs.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index observation: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index observation failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// LastPrice returns the most recently observed price for productURL.
// ok is false when the product has never been stored.
func (c *Client) LastPrice(ctx context.Context, productURL string) (float64, bool, error) {
	items, err := c.search(ctx, map[string]any{
		"size":    1,
		"_source": []string{"current_price", "observed_at"},
		"query": map[string]any{
			"term": map[string]any{"product_url": productURL},
		},
		"sort": sortBy("observed_at", "desc"),
	})
	if err != nil {
		return 0, false, err
	}
	if len(items) == 0 {
		return 0, false, nil
	}
	return items[0].CurrentPrice, true, nil
}

// Latest returns the newest observations across all products.
func (c *Client) Latest(ctx context.Context, limit int) ([]models.Observation, error) {
	return c.search(ctx, map[string]any{
		"size":  limit,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  sortBy("observed_at", "desc"),
	})
}

// ByMarket returns the newest observations for a market, matched case-insensitively.
func (c *Client) ByMarket(ctx context.Context, market string, limit int) ([]models.Observation, error) {
	return c.search(ctx, map[string]any{
		"size": limit,
		"query": map[string]any{
			"term": map[string]any{
				"market_name": map[string]any{"value": market, "case_insensitive": true},
			},
		},
		"sort": sortBy("observed_at", "desc"),
	})
}

// History returns up to limit daily observations for a product, newest first.
func (c *Client) History(ctx context.Context, productURL string, limit int) ([]models.Observation, error) {
	return c.search(ctx, map[string]any{
		"size": limit,
		"query": map[string]any{
			"term": map[string]any{"product_url": productURL},
		},
		"sort": sortBy("observed_date", "desc"),
	})
}

// Drops returns observations whose drop is at least minPct, newest first.
func (c *Client) Drops(ctx context.Context, minPct float64, limit int) ([]models.Observation, error) {
	return c.search(ctx, map[string]any{
		"size": limit,
		"query": map[string]any{
			"range": map[string]any{"price_drop_pct": map[string]any{"gte": minPct}},
		},
		"sort": sortBy("observed_at", "desc"),
	})
}

// Deals returns the biggest drops observed on date.
func (c *Client) Deals(ctx context.Context, date string, minPct float64, limit int) ([]models.Observation, error) {
	return c.search(ctx, map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"observed_date": date}},
					{"range": map[string]any{"price_drop_pct": map[string]any{"gte": minPct}}},
				},
			},
		},
		"sort": sortBy("price_drop_pct", "desc"),
	})
}

// SearchName finds products whose name contains term (case-insensitive),
// newest first, one observation per product URL. Collapsing on the URL keeps
// daily rows of one product from filling the page.
func (c *Client) SearchName(ctx context.Context, term string, limit int) ([]models.Observation, error) {
	pattern := "*" + escapeWildcard(strings.TrimSpace(term)) + "*"
	items, err := c.search(ctx, map[string]any{
		"size":     limit,
		"collapse": map[string]any{"field": "product_url"},
		"query": map[string]any{
			"wildcard": map[string]any{
				"product_name.raw": map[string]any{"value": pattern, "case_insensitive": true},
			},
		},
		"sort": sortBy("observed_at", "desc"),
	})
	if err != nil {
		return nil, err
	}
	return uniqueByURL(items), nil
}

// Markets returns the distinct market names, sorted.
func (c *Client) Markets(ctx context.Context) ([]string, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"markets": map[string]any{
				"terms": map[string]any{"field": "market_name", "size": 500},
			},
		},
	}

	res, err := c.doSearch(ctx, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var parsed struct {
		Aggregations struct {
			Markets struct {
				Buckets []struct {
					Key string `json:"key"`
				} `json:"buckets"`
			} `json:"markets"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode markets response: %w", err)
	}

	out := make([]string, 0, len(parsed.Aggregations.Markets.Buckets))
	for _, b := range parsed.Aggregations.Markets.Buckets {
		out = append(out, b.Key)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Client) search(ctx context.Context, body map[string]any) ([]models.Observation, error) {
	res, err := c.doSearch(ctx, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Observation `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Observation, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return items, nil
}

func (c *Client) doSearch(ctx context.Context, body map[string]any) (*esapi.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
		c.es.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}
	return res, nil
}

// DeleteOlderThan removes observations older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"max_docs": batchSize,
			"query": map[string]any{
				"range": map[string]any{
					"observed_at": map[string]any{"lte": cutoff},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// Close is a no-op; the HTTP transport has nothing to release.
func (c *Client) Close() {}

func sortBy(field, order string) []map[string]any {
	return []map[string]any{
		{field: map[string]any{"order": order}},
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}

func uniqueByURL(items []models.Observation) []models.Observation {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it.ProductURL]; ok {
			continue
		}
		seen[it.ProductURL] = struct{}{}
		out = append(out, it)
	}
	return out
}

package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
)

const marketfiyatiUserAgent = "BakkalMonitor/1.0 (price comparison tool)"

// MarketfiyatiConfig configures the marketfiyati.org.tr search collector.
type MarketfiyatiConfig struct {
	Endpoint  string
	Keywords  []string
	Lat       float64
	Lon       float64
	Distance  int
	Size      int
	ChunkSize int
	// KeywordDelay spaces consecutive keyword searches.
	KeywordDelay time.Duration
	Timeout      time.Duration
}

// Marketfiyati queries the public price comparison API once per keyword.
type Marketfiyati struct {
	cfg  MarketfiyatiConfig
	http *resty.Client
	log  *slog.Logger
}

type searchRequest struct {
	Keywords  string  `json:"keywords"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Distance  int     `json:"distance"`
	Size      int     `json:"size"`
}

type searchResponse struct {
	Content []searchProduct `json:"content"`
}

type searchProduct struct {
	ID     flexString   `json:"id"`
	Title  string       `json:"title"`
	Depots []depotOffer `json:"productDepotInfoList"`
}

type depotOffer struct {
	Price     float64 `json:"price"`
	MarketAdi string  `json:"marketAdi"`
	DepotName string  `json:"depotName"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

var marketDisplayNames = map[string]string{
	"bim":         "BIM",
	"a101":        "A101",
	"sok":         "SOK",
	"migros":      "Migros",
	"carrefour":   "CarrefourSA",
	"carrefoursa": "CarrefourSA",
	"hakmar":      "Hakmar",
	"tarim_kredi": "Tarim Kredi",
}

// NewMarketfiyati builds the collector.
func NewMarketfiyati(cfg MarketfiyatiConfig, log *slog.Logger) *Marketfiyati {
	if cfg.Distance <= 0 {
		cfg.Distance = 50
	}
	if cfg.Size <= 0 {
		cfg.Size = 100
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8000
	}
	client := newHTTPClient("marketfiyati", HTTPOptions{
		Timeout:   cfg.Timeout,
		Delay:     cfg.KeywordDelay,
		UserAgent: marketfiyatiUserAgent,
	})
	return &Marketfiyati{cfg: cfg, http: client, log: log}
}

func (m *Marketfiyati) Name() string { return "marketfiyati" }

// Collect searches every keyword. A failed keyword is logged and skipped;
// the run fails only when every keyword failed.
func (m *Marketfiyati) Collect(ctx context.Context) (Batch, error) {
	var out Batch
	total := len(m.cfg.Keywords)
	failed := 0

	m.log.Info("querying marketfiyati",
		slog.Int("keywords", total),
		slog.Float64("lat", m.cfg.Lat),
		slog.Float64("lon", m.cfg.Lon),
	)

	for i, kw := range m.cfg.Keywords {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		body, err := m.search(ctx, kw)
		if err != nil {
			failed++
			m.log.Error("marketfiyati search", slog.String("keyword", kw), slog.Any("err", err))
		} else {
			records, chunks := m.decode(body)
			out.Records = append(out.Records, records...)
			out.Chunks = append(out.Chunks, chunks...)
			m.log.Debug("marketfiyati keyword",
				slog.String("keyword", kw),
				slog.Int("records", len(records)),
				slog.Int("chunks", len(chunks)),
			)
		}

		if n := i + 1; n%10 == 0 || n == total {
			m.log.Info("marketfiyati progress", slog.Int("done", n), slog.Int("total", total))
		}
	}

	if total > 0 && failed == total {
		return out, fmt.Errorf("marketfiyati: all %d keyword searches failed", total)
	}
	m.log.Info("marketfiyati complete",
		slog.Int("records", len(out.Records)),
		slog.Int("chunks", len(out.Chunks)),
	)
	return out, nil
}

func (m *Marketfiyati) search(ctx context.Context, keyword string) ([]byte, error) {
	res, err := m.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(searchRequest{
			Keywords:  keyword,
			Latitude:  m.cfg.Lat,
			Longitude: m.cfg.Lon,
			Distance:  m.cfg.Distance,
			Size:      m.cfg.Size,
		}).
		Post(m.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("status %d", res.StatusCode())
	}
	return res.Body(), nil
}

// decode maps the search response to one record per product and market.
// Bodies without a content list are handed to the extractor as chunks.
func (m *Marketfiyati) decode(body []byte) ([]models.ProductRecord, []models.RawChunk) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Content != nil {
		return productRecords(resp.Content), nil
	}

	var pretty bytes.Buffer
	text := string(body)
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		text = pretty.String()
	}
	var chunks []models.RawChunk
	for _, c := range processing.ChunkText(text, m.cfg.ChunkSize) {
		chunks = append(chunks, models.RawChunk{
			Source:    m.Name(),
			Content:   c,
			SourceURL: m.cfg.Endpoint,
		})
	}
	return nil, chunks
}

func productRecords(products []searchProduct) []models.ProductRecord {
	var out []models.ProductRecord
	for _, p := range products {
		name := strings.TrimSpace(p.Title)
		if name == "" || p.ID == "" {
			continue
		}
		for _, d := range p.Depots {
			if d.Price <= 0 {
				continue
			}
			out = append(out, models.ProductRecord{
				ProductName:  name,
				CurrentPrice: d.Price,
				MarketName:   MarketDisplayName(d.MarketAdi),
				ProductURL:   productURL(string(p.ID), d.MarketAdi),
			})
		}
	}
	return out
}

// MarketDisplayName maps marketfiyati market keys to their display names.
func MarketDisplayName(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if name, ok := marketDisplayNames[k]; ok {
		return name
	}
	return strings.TrimSpace(key)
}

func productURL(id, market string) string {
	return "https://marketfiyati.org.tr/urun/" + url.PathEscape(id) +
		"?market=" + url.QueryEscape(strings.ToLower(strings.TrimSpace(market)))
}

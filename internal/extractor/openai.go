package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dubonzi/otelresty"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
	"github.com/bakkal-monitor/price-radar/internal/telemetry"
)

const systemPrompt = `You are a Turkish grocery price extraction assistant.
Extract ALL product names, prices, market names, and URLs from the provided content.

CRITICAL price parsing rules:
- Turkish decimal separator is COMMA:       "12,99 TL"    -> 12.99
- Turkish thousands separator is PERIOD:    "1.249,99 TL" -> 1249.99
- Currency markers: "TL", or absent (assume TL).
- Skip any product where you cannot confidently extract BOTH name AND price.

Market names to recognise: BIM, A101, SOK, Migros, CarrefourSA, Hakmar, Tarim Kredi.

Return ONLY a valid JSON object with this exact structure:
{"products": [{"product_name": "...", "current_price": 0.0, "market_name": "...", "product_url": "..."}]}
If nothing is found, return {"products": []}.
`

// OpenAIConfig configures the chat-completions extractor.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// Delay is the minimum spacing between two completions.
	Delay time.Duration
}

// OpenAI extracts records with a chat-completions model in JSON mode.
type OpenAI struct {
	http  *resty.Client
	model string
	log   *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type extracted struct {
	Products []json.RawMessage `json:"products"`
}

type extractedItem struct {
	ProductName  string          `json:"product_name"`
	CurrentPrice json.RawMessage `json:"current_price"`
	MarketName   string          `json:"market_name"`
	ProductURL   string          `json:"product_url"`
}

// NewOpenAI builds the extractor.
func NewOpenAI(cfg OpenAIConfig, log *slog.Logger) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	otelresty.TraceClient(client, otelresty.WithTracerName("openai-http"))

	if cfg.Delay > 0 {
		limiter := rate.NewLimiter(rate.Every(cfg.Delay), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	return &OpenAI{http: client, model: cfg.Model, log: log}
}

// Extract sends one chunk to the model. Failures are logged and yield nothing.
func (o *OpenAI) Extract(ctx context.Context, chunk models.RawChunk) []models.ProductRecord {
	if strings.TrimSpace(chunk.Content) == "" {
		return nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "extractor.openai")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", chunk.Source),
		attribute.Int("content.length", len(chunk.Content)),
	)

	records, err := o.extract(ctx, chunk)
	if err != nil {
		telemetry.Fail(span, err)
		o.log.Error("extract chunk",
			slog.String("source", chunk.Source),
			slog.String("source_url", chunk.SourceURL),
			slog.Any("err", err),
		)
		return nil
	}

	span.SetAttributes(attribute.Int("products", len(records)))
	o.log.Info("chunk extracted",
		slog.String("source", chunk.Source),
		slog.String("source_url", truncate(chunk.SourceURL, 60)),
		slog.Int("products", len(records)),
	)
	return records
}

func (o *OpenAI) extract(ctx context.Context, chunk models.RawChunk) ([]models.ProductRecord, error) {
	var out chatResponse
	res, err := o.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: o.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: chunk.Content},
			},
			ResponseFormat: map[string]string{"type": "json_object"},
			Temperature:    0,
			MaxTokens:      4096,
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("chat completion: status %d: %s", res.StatusCode(), truncate(res.String(), 200))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("empty completion")
	}

	return DecodeProducts(out.Choices[0].Message.Content, chunk.SourceURL)
}

// DecodeProducts parses the model's {"products": [...]} answer. Items that
// lack a name or a positive price are skipped. Placeholder URLs are replaced
// by sourceURL.
func DecodeProducts(raw, sourceURL string) ([]models.ProductRecord, error) {
	var doc extracted
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	records := make([]models.ProductRecord, 0, len(doc.Products))
	for _, item := range doc.Products {
		var it extractedItem
		if err := json.Unmarshal(item, &it); err != nil {
			continue
		}
		price, ok := decodePrice(it.CurrentPrice)
		name := strings.TrimSpace(it.ProductName)
		if !ok || name == "" {
			continue
		}

		url := strings.TrimSpace(it.ProductURL)
		switch strings.ToUpper(url) {
		case "", "N/A", "NONE", "NULL":
			url = sourceURL
		}

		records = append(records, models.ProductRecord{
			ProductName:  name,
			CurrentPrice: price,
			MarketName:   strings.TrimSpace(it.MarketName),
			ProductURL:   url,
		})
	}
	return records, nil
}

// decodePrice accepts a JSON number or a Turkish formatted price string.
func decodePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, n > 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		p := processing.ParsePrice(s)
		return p, p > 0
	}
	return 0, false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

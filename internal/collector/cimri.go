package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-resty/resty/v2"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
)

// Cimri renders comparison pages to Markdown and leaves extraction to the
// extractor.
type Cimri struct {
	urls      []string
	chunkSize int
	render    string
	http      *resty.Client
	conv      *md.Converter
	log       *slog.Logger
}

// NewCimri builds the collector.
func NewCimri(urls []string, chunkSize int, opts HTTPOptions, log *slog.Logger) *Cimri {
	if chunkSize <= 0 {
		chunkSize = 8000
	}
	conv := md.NewConverter("", true, nil)
	conv.Remove("script", "style", "noscript", "nav", "footer", "header", "svg", "img", "iframe")

	return &Cimri{
		urls:      urls,
		chunkSize: chunkSize,
		render:    opts.RenderEndpoint,
		http:      newHTTPClient("cimri", opts),
		conv:      conv,
		log:       log,
	}
}

func (c *Cimri) Name() string { return "cimri" }

func (c *Cimri) Collect(ctx context.Context) (Batch, error) {
	var out Batch
	failed := 0
	for _, u := range c.urls {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		html, err := fetchPage(ctx, c.http, u, c.render)
		if err != nil {
			failed++
			c.log.Error("cimri page", slog.String("url", u), slog.Any("err", err))
			continue
		}
		chunks, err := c.pageChunks(html, u)
		if err != nil {
			failed++
			c.log.Error("cimri markdown", slog.String("url", u), slog.Any("err", err))
			continue
		}
		if len(chunks) == 0 {
			c.log.Warn("no markdown extracted", slog.String("url", u))
			continue
		}
		out.Chunks = append(out.Chunks, chunks...)
		c.log.Info("cimri page crawled", slog.String("url", u), slog.Int("chunks", len(chunks)))
	}

	if len(c.urls) > 0 && failed == len(c.urls) {
		return out, fmt.Errorf("cimri: all %d pages failed", failed)
	}
	return out, nil
}

func (c *Cimri) pageChunks(html, pageURL string) ([]models.RawChunk, error) {
	markdown, err := c.conv.ConvertString(html)
	if err != nil {
		return nil, err
	}
	var out []models.RawChunk
	for _, chunk := range processing.ChunkText(strings.TrimSpace(markdown), c.chunkSize) {
		out = append(out, models.RawChunk{Source: c.Name(), Content: chunk, SourceURL: pageURL})
	}
	return out, nil
}

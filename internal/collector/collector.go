package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/purell"
	"github.com/dubonzi/otelresty"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Batch is what one collector produced in a run. Records are already
// structured; Chunks still need extraction.
type Batch struct {
	Records []models.ProductRecord
	Chunks  []models.RawChunk
}

// Collector fetches one source.
type Collector interface {
	Name() string
	Collect(ctx context.Context) (Batch, error)
}

// HTTPOptions are shared by every page based collector.
type HTTPOptions struct {
	Timeout time.Duration
	// Delay is the minimum spacing between two requests of one collector.
	Delay time.Duration
	// RenderEndpoint, when set, is called as GET {endpoint}?url={page} and
	// must return the rendered HTML of page.
	RenderEndpoint string
	UserAgent      string
}

func newHTTPClient(name string, opts HTTPOptions) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browserUserAgent
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept-Language", "tr-TR,tr;q=0.9")
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	otelresty.TraceClient(client, otelresty.WithTracerName(name+"-http"))

	if opts.Delay > 0 {
		limiter := rate.NewLimiter(rate.Every(opts.Delay), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	return client
}

func fetchPage(ctx context.Context, client *resty.Client, pageURL, renderEndpoint string) (string, error) {
	target := pageURL
	if renderEndpoint != "" {
		sep := "?"
		if strings.Contains(renderEndpoint, "?") {
			sep = "&"
		}
		target = renderEndpoint + sep + "url=" + url.QueryEscape(pageURL)
	}

	res, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		Get(target)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, res.StatusCode())
	}
	return res.String(), nil
}

// absoluteURL resolves href against base and normalises the result.
// An empty href yields base.
func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	resolved := b.ResolveReference(ref).String()
	normalized, err := purell.NormalizeURLString(resolved, purell.FlagsSafe|purell.FlagRemoveFragment)
	if err != nil {
		return resolved
	}
	return normalized
}

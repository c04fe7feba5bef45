package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
)

// cardParser pulls product records out of one listing page.
type cardParser func(doc *goquery.Document, pageURL string) []models.ProductRecord

// CardSite scrapes product cards directly from listing pages; no extraction
// step is needed.
type CardSite struct {
	name   string
	urls   []string
	render string
	parse  cardParser
	http   *resty.Client
	log    *slog.Logger
}

// NewEssen builds the essenjet.com collector.
func NewEssen(urls []string, opts HTTPOptions, log *slog.Logger) *CardSite {
	return newCardSite("essen", urls, parseEssenCards, opts, log)
}

// NewBizimToptan builds the bizimtoptan.com.tr collector.
func NewBizimToptan(urls []string, opts HTTPOptions, log *slog.Logger) *CardSite {
	return newCardSite("bizimtoptan", urls, parseBizimCards, opts, log)
}

func newCardSite(name string, urls []string, parse cardParser, opts HTTPOptions, log *slog.Logger) *CardSite {
	return &CardSite{
		name:   name,
		urls:   urls,
		render: opts.RenderEndpoint,
		parse:  parse,
		http:   newHTTPClient(name, opts),
		log:    log,
	}
}

func (s *CardSite) Name() string { return s.name }

func (s *CardSite) Collect(ctx context.Context) (Batch, error) {
	var out Batch
	failed := 0
	for _, u := range s.urls {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		html, err := fetchPage(ctx, s.http, u, s.render)
		if err != nil {
			failed++
			s.log.Error("page error", slog.String("source", s.name), slog.String("url", u), slog.Any("err", err))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			failed++
			s.log.Error("parse html", slog.String("source", s.name), slog.String("url", u), slog.Any("err", err))
			continue
		}

		records := s.parse(doc, u)
		if len(records) == 0 {
			s.log.Warn("no product cards", slog.String("source", s.name), slog.String("url", u))
			continue
		}
		out.Records = append(out.Records, records...)
		s.log.Info("page scraped", slog.String("source", s.name), slog.String("url", u), slog.Int("products", len(records)))
	}

	if len(s.urls) > 0 && failed == len(s.urls) {
		return out, fmt.Errorf("%s: all %d pages failed", s.name, failed)
	}
	s.log.Info("scrape complete", slog.String("source", s.name), slog.Int("products", len(out.Records)))
	return out, nil
}

func parseEssenCards(doc *goquery.Document, pageURL string) []models.ProductRecord {
	var out []models.ProductRecord
	doc.Find(".urunler-col").Each(func(_ int, card *goquery.Selection) {
		name := strings.TrimSpace(card.Find("h6.min-height-name").First().Text())
		priceEl := card.Find("span.priceText").First()
		if name == "" || priceEl.Length() == 0 {
			return
		}
		price := processing.ParsePrice(priceEl.Text())
		if price <= 0 {
			return
		}
		href, _ := card.Find(`a[href*="/urun/"]`).First().Attr("href")
		out = append(out, models.ProductRecord{
			ProductName:  name,
			CurrentPrice: price,
			MarketName:   "Essen JET",
			ProductURL:   absoluteURL(pageURL, href),
		})
	})
	return out
}

func parseBizimCards(doc *goquery.Document, pageURL string) []models.ProductRecord {
	var out []models.ProductRecord
	doc.Find(".product-box-container").Each(func(_ int, card *goquery.Selection) {
		name := strings.TrimSpace(card.Find(".productbox-name").First().Text())
		priceEl := card.Find(".campaign-price").First()
		if priceEl.Length() == 0 {
			priceEl = card.Find(".product-price").First()
		}
		if name == "" || priceEl.Length() == 0 {
			return
		}
		price := processing.ParsePrice(priceEl.Text())
		if price <= 0 {
			return
		}
		href, _ := card.Find("a[href]").First().Attr("href")
		out = append(out, models.ProductRecord{
			ProductName:  name,
			CurrentPrice: price,
			MarketName:   "Bizim Toptan",
			ProductURL:   absoluteURL(pageURL, href),
		})
	})
	return out
}

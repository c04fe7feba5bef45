package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
	"github.com/bakkal-monitor/price-radar/internal/store"
)

const (
	searchLimit  = 50
	recentLimit  = 10
	dealsLimit   = 10
	historyDays  = 7
	dealsMinDrop = 0.01
)

var (
	greetings = wordSet("merhaba", "selam", "hi", "hello", "hey", "sa", "slm")
	thanks    = wordSet("teşekkür", "teşekkürler", "sağol", "sağolun", "thanks", "thank you", "thx", "ty")
	byes      = wordSet("iyi günler", "güle güle", "bye", "görüşürüz")
)

type searchResult struct {
	rows    []models.Observation
	matched string
	history []models.Observation
}

// Handler turns an incoming message into the reply text.
type Handler struct {
	store store.Reader
	cache *expirable.LRU[string, searchResult]
	log   *slog.Logger
	now   func() time.Time
}

// NewHandler builds a handler whose search results live in an LRU of
// cacheSize entries for ttl.
func NewHandler(reader store.Reader, cacheSize int, ttl time.Duration, log *slog.Logger) *Handler {
	return &Handler{
		store: reader,
		cache: expirable.NewLRU[string, searchResult](cacheSize, nil, ttl),
		log:   log,
		now:   time.Now,
	}
}

// Reply returns the HTML reply for text. An empty reply means nothing
// should be sent.
func (h *Handler) Reply(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	lower := strings.ToLower(text)

	if cmd, arg, ok := splitCommand(text); ok {
		return h.command(ctx, cmd, arg)
	}

	switch {
	case has(greetings, lower):
		return greetingText, nil
	case has(thanks, lower):
		return thanksText, nil
	case has(byes, lower):
		return byeText, nil
	}

	res, err := h.search(ctx, text)
	if err != nil {
		return "", err
	}
	return PriceReply(CleanQuery(text), res.rows, res.matched, res.history), nil
}

func (h *Handler) command(ctx context.Context, cmd, arg string) (string, error) {
	switch cmd {
	case "/start":
		return startText, nil
	case "/help":
		return helpText, nil
	case "/markets":
		markets, err := h.store.Markets(ctx)
		if err != nil {
			return "", fmt.Errorf("markets: %w", err)
		}
		return MarketsReply(markets), nil
	case "/son":
		rows, err := h.store.Latest(ctx, recentLimit)
		if err != nil {
			return "", fmt.Errorf("recent: %w", err)
		}
		return RecentReply(rows), nil
	case "/firsat", "/fırsat":
		rows, err := h.store.Deals(ctx, processing.ObservedDate(h.now()), dealsMinDrop, dealsLimit)
		if err != nil {
			return "", fmt.Errorf("deals: %w", err)
		}
		return DealsReply(rows), nil
	case "/fiyat":
		if arg == "" {
			return fmt.Sprintf(usageText, "fiyat"), nil
		}
		res, err := h.search(ctx, arg)
		if err != nil {
			return "", err
		}
		return PriceReply(arg, res.rows, res.matched, res.history), nil
	case "/gecmis", "/geçmiş":
		if arg == "" {
			return fmt.Sprintf(usageText, "gecmis"), nil
		}
		res, err := h.search(ctx, arg)
		if err != nil {
			return "", err
		}
		if len(res.rows) == 0 {
			return PriceReply(arg, nil, "", nil), nil
		}
		return HistoryReply(res.rows[0].ProductName, res.history), nil
	default:
		return unknownCommandText, nil
	}
}

// search tries every expanded term and keeps the first one with results,
// together with the history of its first row.
func (h *Handler) search(ctx context.Context, query string) (searchResult, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if res, ok := h.cache.Get(key); ok {
		return res, nil
	}

	terms := ExpandQuery(query)
	h.log.Debug("query expanded", slog.String("query", query), slog.Any("terms", terms))

	var errs []error
	res := searchResult{matched: query}
	for _, term := range terms {
		rows, err := h.store.SearchName(ctx, term, searchLimit)
		if err != nil {
			h.log.Error("search failed", slog.String("term", term), slog.Any("err", err))
			errs = append(errs, err)
			continue
		}
		if len(rows) > 0 {
			res = searchResult{rows: rows, matched: term}
			break
		}
	}
	if len(res.rows) == 0 && len(errs) > 0 {
		return searchResult{}, fmt.Errorf("search %q: %w", query, errors.Join(errs...))
	}

	if len(res.rows) > 0 {
		history, err := h.store.History(ctx, res.rows[0].ProductURL, historyDays)
		if err != nil {
			h.log.Warn("history lookup failed", slog.String("url", res.rows[0].ProductURL), slog.Any("err", err))
		}
		res.history = history
	}

	h.cache.Add(key, res)
	return res, nil
}

// splitCommand splits "/fiyat@bakkalbot süt" into "/fiyat" and "süt".
func splitCommand(text string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func has(set map[string]struct{}, s string) bool {
	_, ok := set[s]
	return ok
}

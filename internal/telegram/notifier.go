package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes text for HTML parse mode.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

// Notifier delivers alerts and run summaries to one chat.
type Notifier struct {
	client *Client
	chatID string
	log    *slog.Logger
	now    func() time.Time
}

// NewNotifier builds a notifier posting to chatID.
func NewNotifier(client *Client, chatID string, log *slog.Logger) *Notifier {
	return &Notifier{client: client, chatID: chatID, log: log, now: time.Now}
}

// SendAlert reports whether the alert was delivered.
func (n *Notifier) SendAlert(ctx context.Context, rec models.ProductRecord, previous, dropPct float64) bool {
	err := n.client.SendMessage(ctx, n.chatID, FormatAlert(rec, previous, dropPct), SendOptions{ParseMode: "HTML"})
	if err != nil {
		n.log.Error("telegram alert", slog.String("url", rec.ProductURL), slog.Any("err", err))
		return false
	}
	n.log.Info("telegram alert sent",
		slog.String("product", rec.ProductName),
		slog.String("drop", fmt.Sprintf("%.1f%%", dropPct)),
	)
	return true
}

// SendSummary never fails; errors are logged.
func (n *Notifier) SendSummary(ctx context.Context, s models.RunSummary) {
	at := s.FinishedAt
	if at.IsZero() {
		at = n.now()
	}
	if err := n.client.SendMessage(ctx, n.chatID, FormatSummary(s, at), SendOptions{ParseMode: "HTML"}); err != nil {
		n.log.Error("telegram summary", slog.Any("err", err))
		return
	}
	n.log.Info("summary sent to telegram")
}

// FormatAlert renders the Turkish price drop message.
func FormatAlert(rec models.ProductRecord, previous, dropPct float64) string {
	var b strings.Builder
	b.WriteString("📉 <b>Fiyat Düşüşü Alarmı!</b>\n\n")
	fmt.Fprintf(&b, "<b>%s</b>\n", Escape(rec.ProductName))
	fmt.Fprintf(&b, "Market: %s\n", Escape(rec.MarketName))
	fmt.Fprintf(&b, "Önceki Fiyat: %s\n", Escape(processing.FormatTRY(previous)))
	fmt.Fprintf(&b, "Yeni Fiyat: <b>%s</b>\n", Escape(processing.FormatTRY(rec.CurrentPrice)))
	fmt.Fprintf(&b, "Düşüş: <b>%%%.1f</b>\n\n", dropPct)
	fmt.Fprintf(&b, `<a href="%s">Ürüne Git</a>`, Escape(rec.ProductURL))
	return b.String()
}

// FormatSummary renders the end-of-run report.
func FormatSummary(s models.RunSummary, at time.Time) string {
	return fmt.Sprintf(
		"<b>Bakkal Monitor - Günlük Rapor</b>\n"+
			"Tarih: %s\n\n"+
			"Taranan ürün: %d\n"+
			"Fiyat düşüşü alarmı: %d\n"+
			"Hata: %d",
		at.UTC().Format("02.01.2006 15:04")+" UTC",
		s.Processed, s.Alerts, s.Errors,
	)
}

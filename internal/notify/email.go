package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
)

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Email sends a plain text copy of alerts and summaries over SMTP.
type Email struct {
	cfg  config.SMTP
	log  *slog.Logger
	send sendFunc
}

// NewEmail returns nil when SMTP is not configured.
func NewEmail(cfg config.SMTP, log *slog.Logger) *Email {
	if cfg.Addr == "" || len(cfg.To) == 0 {
		return nil
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Email{
		cfg: cfg,
		log: log,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (m *Email) SendAlert(_ context.Context, rec models.ProductRecord, previous, dropPct float64) bool {
	subject := fmt.Sprintf("Fiyat Düşüşü: %s (%%%.1f)", rec.ProductName, dropPct)
	body := fmt.Sprintf(
		"%s\nMarket: %s\nÖnceki Fiyat: %s\nYeni Fiyat: %s\nDüşüş: %%%.1f\n\n%s\n",
		rec.ProductName, rec.MarketName,
		processing.FormatTRY(previous), processing.FormatTRY(rec.CurrentPrice),
		dropPct, rec.ProductURL,
	)
	if err := m.deliver(subject, body); err != nil {
		m.log.Error("email alert", slog.String("url", rec.ProductURL), slog.Any("err", err))
		return false
	}
	return true
}

func (m *Email) SendSummary(_ context.Context, s models.RunSummary) {
	subject := "Bakkal Monitor - Günlük Rapor"
	body := fmt.Sprintf(
		"Çalışma: %s\nTaranan ürün: %d\nFiyat düşüşü alarmı: %d\nHata: %d\n",
		s.RunID, s.Processed, s.Alerts, s.Errors,
	)
	if err := m.deliver(subject, body); err != nil {
		m.log.Error("email summary", slog.Any("err", err))
	}
}

func (m *Email) deliver(subject, body string) error {
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = m.cfg.To
	e.Subject = subject
	e.Text = []byte(body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		host, _, err := net.SplitHostPort(m.cfg.Addr)
		if err != nil {
			host = strings.Split(m.cfg.Addr, ":")[0]
		}
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}
	return m.send(e, m.cfg.Addr, auth)
}

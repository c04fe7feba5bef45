package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
)

type recorder struct {
	deliver   bool
	alerts    int
	summaries int
}

func (r *recorder) SendAlert(context.Context, models.ProductRecord, float64, float64) bool {
	r.alerts++
	return r.deliver
}

func (r *recorder) SendSummary(context.Context, models.RunSummary) { r.summaries++ }

func TestMultiDeliveredIfAnyChildDelivers(t *testing.T) {
	a, b := &recorder{deliver: false}, &recorder{deliver: true}
	m := Multi{a, b}

	require.True(t, m.SendAlert(context.Background(), models.ProductRecord{}, 10, 50))
	m.SendSummary(context.Background(), models.RunSummary{})

	require.Equal(t, 1, a.alerts)
	require.Equal(t, 1, b.alerts)
	require.Equal(t, 1, a.summaries)
	require.Equal(t, 1, b.summaries)
}

func TestMultiNoneDelivered(t *testing.T) {
	require.False(t, Multi{&recorder{}, Nop{}}.SendAlert(context.Background(), models.ProductRecord{}, 1, 1))
	require.False(t, Multi{}.SendAlert(context.Background(), models.ProductRecord{}, 1, 1))
}

func TestNewEmailDisabledWithoutConfig(t *testing.T) {
	require.Nil(t, NewEmail(config.SMTP{}, logger.Discard()))
	require.Nil(t, NewEmail(config.SMTP{Addr: "smtp:25"}, logger.Discard()))
}

func TestEmailSendAlert(t *testing.T) {
	m := NewEmail(config.SMTP{
		Addr: "smtp.example.com:587", Username: "bot@example.com", Password: "pw",
		To: []string{"owner@example.com"},
	}, logger.Discard())
	require.NotNil(t, m)

	var sent *email.Email
	var addr string
	var auth smtp.Auth
	m.send = func(e *email.Email, a string, au smtp.Auth) error {
		sent, addr, auth = e, a, au
		return nil
	}

	ok := m.SendAlert(context.Background(), models.ProductRecord{
		ProductName: "Süt", CurrentPrice: 90, MarketName: "BIM", ProductURL: "https://x/1",
	}, 100, 10)
	require.True(t, ok)
	require.Equal(t, "smtp.example.com:587", addr)
	require.NotNil(t, auth)
	require.Equal(t, "bot@example.com", sent.From)
	require.Equal(t, []string{"owner@example.com"}, sent.To)
	require.Equal(t, "Fiyat Düşüşü: Süt (%10.0)", sent.Subject)
	require.Contains(t, string(sent.Text), "Yeni Fiyat: 90,00 TL")

	m.send = func(*email.Email, string, smtp.Auth) error { return errors.New("dial failed") }
	require.False(t, m.SendAlert(context.Background(), models.ProductRecord{ProductURL: "u"}, 2, 50))
}

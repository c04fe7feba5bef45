package notify

import (
	"context"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

// Notifier delivers price drop alerts and run summaries.
type Notifier interface {
	// SendAlert reports whether the alert reached its destination.
	SendAlert(ctx context.Context, rec models.ProductRecord, previous, dropPct float64) bool
	// SendSummary never fails; implementations log delivery errors.
	SendSummary(ctx context.Context, s models.RunSummary)
}

// Multi fans out to every child. An alert counts as delivered when any
// child delivered it.
type Multi []Notifier

func (m Multi) SendAlert(ctx context.Context, rec models.ProductRecord, previous, dropPct float64) bool {
	delivered := false
	for _, n := range m {
		if n.SendAlert(ctx, rec, previous, dropPct) {
			delivered = true
		}
	}
	return delivered
}

func (m Multi) SendSummary(ctx context.Context, s models.RunSummary) {
	for _, n := range m {
		n.SendSummary(ctx, s)
	}
}

// Nop drops everything and reports alerts as undelivered.
type Nop struct{}

func (Nop) SendAlert(context.Context, models.ProductRecord, float64, float64) bool { return false }
func (Nop) SendSummary(context.Context, models.RunSummary) {}

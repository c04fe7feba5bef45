package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
	"github.com/bakkal-monitor/price-radar/internal/store"
)

var log *slog.Logger

var rootCmd = &cobra.Command{
	Use:           "pricectl",
	Short:         "pricectl inspects stored grocery prices and triggers monitoring runs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if log == nil {
			log = logger.New("pricectl")
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openReader connects to the store configured in the environment.
func openReader(ctx context.Context) (store.Store, error) {
	cfg, err := config.LoadAPI()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Common, log)
}

func renderObservations(w io.Writer, rows []models.Observation) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Date", "Market", "Product", "Price", "Previous", "Drop"})
	for _, r := range rows {
		prev, drop := "-", "-"
		if r.PreviousPrice != nil {
			prev = processing.FormatTRY(*r.PreviousPrice)
		}
		if r.PriceDropPct != nil {
			drop = fmt.Sprintf("%%%.2f", *r.PriceDropPct)
		}
		t.AppendRow(table.Row{r.ObservedDate, r.MarketName, r.ProductName, processing.FormatTRY(r.CurrentPrice), prev, drop})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d rows", len(rows))})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

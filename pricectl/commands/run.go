package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bakkal-monitor/price-radar/internal/app"
	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/processing"
)

func init() {
	rootCmd.AddCommand(runCmd, parseCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one full monitoring pass and prints its summary.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadMonitor()
		if err != nil {
			return err
		}
		rt, err := app.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		s := rt.RunOnce(cmd.Context())

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Run", "Processed", "Alerts", "Errors", "Took"})
		t.AppendRow(table.Row{s.RunID, s.Processed, s.Alerts, s.Errors, s.FinishedAt.Sub(s.StartedAt).Round(time.Second)})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <price text>",
	Short: "Shows how a scraped price string is parsed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := processing.ParsePrice(args[0])
		if v == 0 {
			return fmt.Errorf("no price found in %q", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.2f\t%s\n", v, processing.FormatTRY(v))
		return nil
	},
}

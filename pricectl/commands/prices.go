package commands

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bakkal-monitor/price-radar/internal/bot"
	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
)

func init() {
	pricesCmd.Flags().String("market", "", "only show prices of this market")
	pricesCmd.Flags().Int("limit", 50, "maximum rows")
	historyCmd.Flags().Int("limit", 30, "maximum days")
	dealsCmd.Flags().Float64("min-drop", 5, "minimum drop percentage")
	dealsCmd.Flags().String("date", "", "observation date, YYYY-MM-DD (default today, UTC)")
	dealsCmd.Flags().Int("limit", 20, "maximum rows")

	rootCmd.AddCommand(pricesCmd, historyCmd, dealsCmd, marketsCmd, searchCmd)
}

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Prints the most recent observations.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		market, _ := cmd.Flags().GetString("market")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var rows []models.Observation
		if market != "" {
			rows, err = st.ByMarket(cmd.Context(), market, limit)
		} else {
			rows, err = st.Latest(cmd.Context(), limit)
		}
		if err != nil {
			return err
		}
		renderObservations(cmd.OutOrStdout(), rows)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <product-url>",
	Short: "Prints the daily price history of one product, oldest first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.History(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		slices.Reverse(rows)
		renderObservations(cmd.OutOrStdout(), rows)
		return nil
	},
}

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Prints the biggest price drops of a day.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		minDrop, _ := cmd.Flags().GetFloat64("min-drop")
		date, _ := cmd.Flags().GetString("date")
		limit, _ := cmd.Flags().GetInt("limit")
		if date == "" {
			date = processing.ObservedDate(time.Now())
		} else if _, err := time.Parse(models.DateLayout, date); err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}

		st, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.Deals(cmd.Context(), date, minDrop, limit)
		if err != nil {
			return err
		}
		renderObservations(cmd.OutOrStdout(), rows)
		return nil
	},
}

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Lists the markets present in the price history.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		markets, err := st.Markets(cmd.Context())
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"#", "Market"})
		for i, m := range markets {
			t.AppendRow(table.Row{i + 1, m})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Searches product names the way the Telegram bot does.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		st, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		for _, term := range bot.ExpandQuery(query) {
			rows, err := st.SearchName(cmd.Context(), term, 50)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "matched %q\n", term)
				renderObservations(cmd.OutOrStdout(), rows)
				return nil
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "no prices found for %q\n", query)
		return nil
	},
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-price-must-flow/internal/cli"
	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/pricing"
)

func pricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Inspect and backfill product costs",
	}
	cmd.AddCommand(pricesHistoryCmd())
	cmd.AddCommand(pricesBackfillCmd())
	return cmd
}

func pricesHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <product-id>",
		Short: "Show a product's price history and trend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			history, err := store.GetHistory(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(history))
			for _, h := range history {
				change := "-"
				if h.ChangePercentage != nil {
					change = fmt.Sprintf("%+.1f%%", *h.ChangePercentage)
				}
				rows = append(rows, []string{
					h.CreatedAt.Format("2006-01-02 15:04"),
					cli.FormatCost(h.OldCost, h.Currency),
					cli.FormatCost(&h.NewCost, h.Currency),
					change,
					h.InvoiceID,
					h.Reason,
				})
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"WHEN", "OLD", "NEW", "CHANGE", "INVOICE", "REASON"}, rows))

			trend := pricing.Trends(history)
			fmt.Fprintf(out, "\nTrend: %s, volatility %s (avg %+.1f%% over %d changes)\n",
				trend.Direction, trend.Volatility, trend.AverageChange, trend.DataPoints)
			return nil
		},
	}
	cmd.Flags().Int("days", 90, "How many days of history to show")
	return cmd
}

func pricesBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill <rows.yaml|rows.json>",
		Short: "Apply operator-supplied costs with a chosen validation mode",
		Long: `Apply a file of cost rows outside the invoice flow.

Rows are YAML or JSON lists of {product_id, cost, currency, reason}.
--mode relaxed widens the change limits; --mode force disables them but still
enforces currency bounds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modeFlag, _ := cmd.Flags().GetString("mode")
			actor, _ := cmd.Flags().GetString("actor")

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if !cmd.Flags().Changed("mode") {
				modeFlag = a.cfg.Bulk.Mode
			}
			mode, err := pricing.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			rows, err := readBackfill(args[0])
			if err != nil {
				return err
			}

			ref := model.InvoiceRef{InvoiceID: "backfill:" + filepath.Base(args[0]), Actor: actor}
			result := a.updater.ApplyBackfill(ctx, ref, rows, mode)

			out := cmd.OutOrStdout()
			for _, r := range result.Results {
				if r.Status != model.UpdateStatusUpdated {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s: %s %s", r.ProductID, r.Status, r.Reason)))
				}
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Backfill (%s): %d updated, %d skipped, %d failed",
				mode, result.Updated, result.Skipped, result.Failed)))
			return nil
		},
	}
	cmd.Flags().String("mode", string(pricing.ModeStrict), "Validation mode (strict, relaxed, force)")
	cmd.Flags().String("actor", defaultReviewer(), "Actor recorded on price history")
	return cmd
}

func readBackfill(path string) ([]pricing.BackfillRow, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied backfill path
	if err != nil {
		return nil, err
	}

	var rows []pricing.BackfillRow
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rows)
	} else {
		err = yaml.Unmarshal(data, &rows)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid backfill file %s: %w", path, err)
	}
	return rows, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-price-must-flow/internal/cli"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and resolve price alerts",
	}
	cmd.AddCommand(alertsListCmd())
	cmd.AddCommand(alertsResolveCmd())
	return cmd
}

func alertsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			status := model.AlertPending
			if all {
				status = ""
			}
			alerts, err := store.ListAlerts(cmd.Context(), status, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(alerts))
			for _, a := range alerts {
				rows = append(rows, []string{
					a.ID,
					a.CreatedAt.Format("2006-01-02 15:04"),
					string(a.Priority),
					string(a.Type),
					a.Message,
					string(a.Status),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "WHEN", "PRIORITY", "TYPE", "MESSAGE", "STATUS"}, rows))
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "Include resolved alerts")
	cmd.Flags().Int("limit", 50, "Maximum alerts to show")
	return cmd
}

func alertsResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Mark an alert as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.ResolveAlert(cmd.Context(), args[0], by); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Resolved alert "+args[0]))
			return nil
		},
	}
	cmd.Flags().String("by", defaultReviewer(), "Who resolved the alert")
	return cmd
}

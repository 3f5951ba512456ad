package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-price-must-flow/internal/cli"
)

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect learned name-to-product mappings",
	}
	cmd.AddCommand(mappingsListCmd())
	cmd.AddCommand(mappingsDeleteCmd())
	return cmd
}

func mappingsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned mappings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vendor, _ := cmd.Flags().GetString("vendor")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mappings, err := store.ListMappings(cmd.Context(), vendor)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(mappings))
			for _, m := range mappings {
				vendorID := m.VendorID
				if vendorID == "" {
					vendorID = "*"
				}
				rows = append(rows, []string{
					strconv.FormatInt(m.ID, 10),
					m.OriginalName,
					vendorID,
					m.ProductName,
					string(m.Source),
					fmt.Sprintf("%.2f", m.Confidence),
					strconv.Itoa(m.UseCount),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "NAME", "VENDOR", "PRODUCT", "SOURCE", "CONFIDENCE", "USES"}, rows))
			return nil
		},
	}
	cmd.Flags().String("vendor", "*", "Only show mappings for this vendor (\"\" for global mappings)")
	return cmd
}

func mappingsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <mapping-id>",
		Short: "Forget a learned mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid mapping id %q: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteMapping(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted mapping "+args[0]))
			return nil
		},
	}
}

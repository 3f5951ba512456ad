package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-price-must-flow/internal/cli"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage the product catalog",
	}
	cmd.AddCommand(productsAddCmd())
	cmd.AddCommand(productsListCmd())
	return cmd
}

func productsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a catalog product",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attrs, err := productFlags(cmd)
			if err != nil {
				return err
			}
			if attrs.Name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			product := &model.Product{
				Name:     attrs.Name,
				Brand:    attrs.Brand,
				Category: attrs.Category,
				Barcode:  attrs.Barcode,
				Size:     attrs.Size,
				Unit:     attrs.Unit,
				Currency: attrs.Currency,
				Cost:     attrs.Cost,
			}
			vector, err := a.embedder.Embed(ctx, product.Name)
			if err != nil {
				slog.Warn("Failed to embed product, semantic search will skip it", "name", product.Name, "error", err)
			} else {
				product.Embedding = vector
			}

			if err := a.catalog.CreateProduct(ctx, product); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added %s (%s)", product.Name, product.ID)))
			return nil
		},
	}
	addProductFlags(cmd)
	return cmd
}

func productsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			products, err := store.ListProducts(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(products))
			for _, p := range products {
				rows = append(rows, []string{p.ID, p.Name, p.Brand, p.Barcode, cli.FormatCost(p.Cost, p.Currency)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "NAME", "BRAND", "BARCODE", "COST"}, rows))
			return nil
		},
	}
}

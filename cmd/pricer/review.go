package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-price-must-flow/internal/cli"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the human review queue",
	}
	cmd.PersistentFlags().String("reviewer", defaultReviewer(), "Reviewer recorded on decisions")

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewRejectCmd())
	cmd.AddCommand(reviewSkipCmd())
	cmd.AddCommand(reviewCreateCmd())
	return cmd
}

func defaultReviewer() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "reviewer"
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review items, most urgent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			priority, _ := cmd.Flags().GetInt("priority")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var filter *int
			if priority > 0 {
				filter = &priority
			}
			items, err := a.reviews.ListPending(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, cli.FormatSuccess("Review queue is empty"))
				return nil
			}
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d pending reviews", len(items))))
			fmt.Fprintln(out, cli.RenderTable(
				[]string{"ID", "PRIORITY", "NAME", "STRATEGY", "CONFIDENCE", "TOP SUGGESTION"},
				cli.ReviewRows(items)))
			return nil
		},
	}
	cmd.Flags().Int("priority", 0, "Only show this priority (1 or 2)")
	return cmd
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <review-id> <product-id>",
		Short: "Approve a review item and learn the mapping",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")

			var confidence *float64
			if cmd.Flags().Changed("confidence") {
				c, _ := cmd.Flags().GetFloat64("confidence")
				confidence = &c
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			item, err := a.reviews.Approve(cmd.Context(), args[0], args[1], reviewer, confidence)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Approved %q → %s", item.OriginalName, args[1])))
			return nil
		},
	}
	cmd.Flags().Float64("confidence", 1.0, "Confidence stored on the learned mapping")
	return cmd
}

func reviewRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <review-id>",
		Short: "Reject a proposed match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			reason, _ := cmd.Flags().GetString("reason")
			correct, _ := cmd.Flags().GetString("correct-product")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			item, err := a.reviews.Reject(cmd.Context(), args[0], reviewer, reason, correct)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Rejected %q", item.OriginalName)
			if correct != "" {
				msg += " and mapped it to " + correct
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(msg))
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Why the match was wrong")
	cmd.Flags().String("correct-product", "", "Product the line actually is")
	return cmd
}

func reviewSkipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip <review-id>",
		Short: "Close a review item without a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			reason, _ := cmd.Flags().GetString("reason")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			item, err := a.reviews.Skip(cmd.Context(), args[0], reviewer, reason)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("Skipped %q", item.OriginalName)))
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Why the item was skipped")
	return cmd
}

func reviewCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <review-id>",
		Short: "Create a catalog product for an unmatched line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			attrs, err := productFlags(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			product, _, err := a.reviews.CreateNewProduct(cmd.Context(), args[0], attrs, reviewer)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created %s (%s)", product.Name, product.ID)))
			return nil
		},
	}
	addProductFlags(cmd)
	return cmd
}

func addProductFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Product name")
	cmd.Flags().String("brand", "", "Brand")
	cmd.Flags().String("category", "", "Category")
	cmd.Flags().String("barcode", "", "Barcode")
	cmd.Flags().String("size", "", "Package size, e.g. 7OZ")
	cmd.Flags().String("unit", "", "Unit")
	cmd.Flags().String("currency", "", "Currency")
	cmd.Flags().Float64("cost", 0, "Initial unit cost")
}

func productFlags(cmd *cobra.Command) (model.NewProduct, error) {
	var p model.NewProduct
	p.Name, _ = cmd.Flags().GetString("name")
	p.Brand, _ = cmd.Flags().GetString("brand")
	p.Category, _ = cmd.Flags().GetString("category")
	p.Barcode, _ = cmd.Flags().GetString("barcode")
	p.Size, _ = cmd.Flags().GetString("size")
	p.Unit, _ = cmd.Flags().GetString("unit")
	p.Currency, _ = cmd.Flags().GetString("currency")
	if cmd.Flags().Changed("cost") {
		c, _ := cmd.Flags().GetFloat64("cost")
		if c <= 0 {
			return p, fmt.Errorf("cost must be positive, got %.2f", c)
		}
		p.Cost = &c
	}
	return p, nil
}

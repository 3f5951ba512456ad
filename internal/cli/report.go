package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// FormatInvoiceReport renders the summary box printed after an invoice run.
func FormatInvoiceReport(r *model.InvoiceReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • Auto-approved: %d\n", r.AutoApproved)
	fmt.Fprintf(&b, "  • Needs review: %d\n", r.NeedsReview)
	fmt.Fprintf(&b, "  • Creation queue: %d\n", r.Created)
	fmt.Fprintf(&b, "  • Prices updated: %d\n", r.PriceUpdates)
	fmt.Fprintf(&b, "  • Prices skipped: %d\n", r.PriceSkipped)
	fmt.Fprintf(&b, "  • Failures: %d\n", r.Failures)
	fmt.Fprintf(&b, "  • Time taken: %s", r.Duration.Round(time.Millisecond))

	for _, reason := range r.SkippedReasons {
		b.WriteString("\n")
		b.WriteString(FormatWarning(reason))
	}
	for _, item := range r.Items {
		if item.Failed {
			b.WriteString("\n")
			b.WriteString(FormatError(fmt.Sprintf("line %d: %s", item.LineNumber, item.Error)))
		}
	}

	return RenderBox("Invoice "+r.InvoiceID, b.String())
}

// ReviewRows turns review items into table rows.
func ReviewRows(items []model.ReviewQueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		suggestion := ""
		if s := item.Context.Suggestions; len(s) > 0 {
			suggestion = fmt.Sprintf("%s (%.2f)", s[0].ProductName, s[0].Score)
		}
		rows = append(rows, []string{
			item.ID,
			fmt.Sprintf("P%d", item.Priority),
			item.OriginalName,
			string(item.Context.Match.Strategy),
			fmt.Sprintf("%.2f", item.Context.Match.Confidence),
			suggestion,
		})
	}
	return rows
}

// FormatCost renders an optional cost.
func FormatCost(c *float64, currency string) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f %s", *c, currency)
}

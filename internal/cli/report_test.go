package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func TestFormatInvoiceReport(t *testing.T) {
	out := FormatInvoiceReport(&model.InvoiceReport{
		InvoiceID:      "inv-7",
		AutoApproved:   3,
		NeedsReview:    1,
		PriceUpdates:   2,
		PriceSkipped:   1,
		Failures:       1,
		Duration:       1500 * time.Millisecond,
		SkippedReasons: []string{"line 2: Price increase of 60.0% exceeds maximum allowed 50%"},
		Items: []model.ItemOutcome{
			{LineNumber: 1},
			{LineNumber: 4, Failed: true, Error: "match: catalog unavailable"},
		},
	})

	assert.Contains(t, out, "Invoice inv-7")
	assert.Contains(t, out, "Auto-approved: 3")
	assert.Contains(t, out, "Prices skipped: 1")
	assert.Contains(t, out, "line 2: Price increase")
	assert.Contains(t, out, "line 4: match: catalog unavailable")
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"ID", "NAME"}, [][]string{
		{"1", "DEEP CASHEW WHOLE 7OZ"},
		{"22", "MTR RAVA IDLI MIX"},
	})

	lines := strings.Split(out, "\n")
	assert.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "DEEP CASHEW WHOLE 7OZ")
	assert.Contains(t, out, "MTR RAVA IDLI MIX")
}

func TestReviewRows(t *testing.T) {
	rows := ReviewRows([]model.ReviewQueueItem{{
		ID:           "r1",
		Priority:     2,
		OriginalName: "Haldirams Bhujia 200g",
		Context: model.ReviewContext{
			Match:       model.MatchResult{Strategy: model.StrategyFuzzy, Confidence: 0.8123},
			Suggestions: []model.Candidate{{ProductName: "HALDIRAM BHUJIA SEV 200G", Score: 0.81}},
		},
	}})

	assert.Equal(t, [][]string{{"r1", "P2", "Haldirams Bhujia 200g", "fuzzy_match", "0.81", "HALDIRAM BHUJIA SEV 200G (0.81)"}}, rows)
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "-", FormatCost(nil, "USD"))
	c := 1.5
	assert.Equal(t, "1.50 USD", FormatCost(&c, "USD"))
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 2, "Processing invoices")
	p.Step()
	p.Step()
	p.Finish()
	assert.NotEmpty(t, buf.String())

	var nilProgress *Progress
	nilProgress.Step()
	nilProgress.Finish()
}

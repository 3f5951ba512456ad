package model

import "time"

// PriceHistoryEntry is an immutable audit record of one accepted cost change.
type PriceHistoryEntry struct {
	CreatedAt        time.Time
	OldCost          *float64
	ChangePercentage *float64
	ProductID        string
	Currency         string
	InvoiceID        string
	InvoiceNumber    string
	VendorID         string
	Reason           string
	Actor            string
	ID               int64
	NewCost          float64
}

// CostSnapshot is the current cost of a product together with its version.
type CostSnapshot struct {
	Cost        *float64
	ProductID   string
	ProductName string
	Currency    string
	Version     int64
}

// CostUpdate is a compare-and-swap cost write.
type CostUpdate struct {
	Ref             InvoiceRef
	ProductID       string
	Currency        string
	Cost            float64
	ExpectedVersion int64
}

// UpdateStatus is the outcome of applying a price.
type UpdateStatus string

// Update status constants.
const (
	UpdateStatusUpdated UpdateStatus = "updated"
	UpdateStatusSkipped UpdateStatus = "skipped"
	UpdateStatusFailed  UpdateStatus = "failed"
)

// TrendDirection summarizes recent price movement.
type TrendDirection string

// Trend direction constants.
const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Volatility buckets the dispersion of recent price changes.
type Volatility string

// Volatility constants.
const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// PriceTrend describes the recent price behavior of a product.
type PriceTrend struct {
	Direction     TrendDirection `json:"direction"`
	Volatility    Volatility     `json:"volatility"`
	AverageChange float64        `json:"average_change"`
	LastChange    float64        `json:"last_change"`
	DataPoints    int            `json:"data_points"`
}

// PriceUpdateResult reports what happened for one price application.
type PriceUpdateResult struct {
	OldCost          *float64
	Trend            *PriceTrend
	ProductID        string
	Status           UpdateStatus
	Currency         string
	Reason           string
	Warning          string
	ChecksPassed     []string
	ChecksFailed     []string
	NewCost          float64
	ChangePercentage float64
	LineNumber       int
	Anomaly          bool
	AuditDegraded    bool
}

// BulkResult aggregates a batch of price applications.
type BulkResult struct {
	Results []PriceUpdateResult
	Updated int
	Skipped int
	Failed  int
	Ignored int
}

// Add folds one result into the counts.
func (b *BulkResult) Add(r PriceUpdateResult) {
	b.Results = append(b.Results, r)
	switch r.Status {
	case UpdateStatusUpdated:
		b.Updated++
	case UpdateStatusSkipped:
		b.Skipped++
	case UpdateStatusFailed:
		b.Failed++
	}
}

package model

import "math"

// LineItem is a single extracted invoice line.
//
// UnitPrice is the price of the whole line unit (typically a pack); the value
// that lands in the catalog is the per-unit cost, see UnitCost.
type LineItem struct {
	InvoiceItemID string  `json:"invoice_item_id,omitempty"`
	ProductName   string  `json:"product_name"`
	Currency      string  `json:"currency,omitempty"`
	Barcode       string  `json:"barcode,omitempty"`
	LineNumber    int     `json:"line_number"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	UnitsPerPack  int     `json:"units_per_pack,omitempty"`
	CostPerUnit   float64 `json:"cost_per_unit,omitempty"`
}

// UnitCost returns the cost of a single unit, rounded to cents.
func (li LineItem) UnitCost() float64 {
	if li.CostPerUnit > 0 {
		return li.CostPerUnit
	}
	if li.UnitsPerPack > 0 {
		return math.Round(li.UnitPrice/float64(li.UnitsPerPack)*100) / 100
	}
	return li.UnitPrice
}

// InvoiceRef identifies the document that caused a change.
type InvoiceRef struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	VendorID      string `json:"vendor_id,omitempty"`
	Actor         string `json:"actor,omitempty"`
}

// Invoice is an extracted invoice ready for matching.
type Invoice struct {
	Ref      InvoiceRef `json:"ref"`
	Currency string     `json:"currency"`
	Items    []LineItem `json:"items"`
}

// ItemCurrency returns the currency for an item, falling back to the invoice's.
func (inv *Invoice) ItemCurrency(li LineItem) string {
	if li.Currency != "" {
		return li.Currency
	}
	return inv.Currency
}

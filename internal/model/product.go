// Package model defines the core domain models used throughout the application.
package model

import "time"

// Product is a catalog item that invoice lines are resolved against.
type Product struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Cost      *float64
	ID        string
	Name      string
	Brand     string
	Category  string
	Barcode   string
	Currency  string
	Size      string
	Unit      string
	Embedding []float32
	Version   int64
}

// HasCost reports whether the product carries a usable current cost.
func (p *Product) HasCost() bool {
	return p.Cost != nil && *p.Cost > 0
}

// CatalogEntry is the lightweight projection of a product used by fuzzy matching.
type CatalogEntry struct {
	ID       string
	Name     string
	Brand    string
	Size     string
	Unit     string
	Category string
}

// ScoredProduct pairs a catalog entry with a similarity score in [0,1].
type ScoredProduct struct {
	CatalogEntry
	Similarity float64
}

// NewProduct holds the attributes a reviewer supplies when an unmatched line
// has no catalog counterpart.
type NewProduct struct {
	Cost     *float64
	Name     string
	Brand    string
	Category string
	Barcode  string
	Currency string
	Size     string
	Unit     string
}

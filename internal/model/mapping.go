package model

import "time"

// MappingSource indicates how a learned mapping was created.
type MappingSource string

const (
	// MappingSourceHuman indicates the mapping came from a review decision.
	MappingSourceHuman MappingSource = "human"
	// MappingSourceSystem indicates the mapping was promoted from an automatic match.
	MappingSourceSystem MappingSource = "system"
)

// ProductMapping remembers that a raw invoice name from a vendor means a product.
// VendorID is empty for mappings that apply to every vendor.
type ProductMapping struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	OriginalName string
	VendorID     string
	ProductID    string
	ProductName  string
	Source       MappingSource
	CreatedBy    string
	ID           int64
	Confidence   float64
	UseCount     int
}

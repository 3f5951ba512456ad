// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// CatalogRepository is the read side of the product catalog used by matching.
// Lookups that find nothing return an error wrapping common.ErrNotFound.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*model.Product, error)
	GetProductByExactName(ctx context.Context, name string) (*model.Product, error)
	SearchByBrandAndKeywords(ctx context.Context, brand string, keywords []string) ([]model.Product, error)
	// SearchBySimilarity returns products whose embedding similarity is at
	// least threshold, best first.
	SearchBySimilarity(ctx context.Context, vector []float32, threshold float64) ([]model.ScoredProduct, error)
	GetLearnedMapping(ctx context.Context, originalName, vendorID string) (*model.ProductMapping, error)
	ListForFuzzyMatch(ctx context.Context) ([]model.CatalogEntry, error)
}

// CatalogStore adds the writes the review workflow needs.
type CatalogStore interface {
	CatalogRepository
	CreateProduct(ctx context.Context, product *model.Product) error
	UpsertMapping(ctx context.Context, mapping *model.ProductMapping) error
}

// InvoiceItemLinker records which product an invoice line resolved to.
type InvoiceItemLinker interface {
	LinkInvoiceItem(ctx context.Context, invoiceItemID, productID string) error
}

// PriceRepository owns product costs and their history.
type PriceRepository interface {
	GetCurrentCost(ctx context.Context, productID string) (*model.CostSnapshot, error)
	// UpdateCost writes the cost only if the product is still at
	// update.ExpectedVersion, otherwise it returns common.ErrVersionConflict.
	UpdateCost(ctx context.Context, update model.CostUpdate) error
	AppendHistory(ctx context.Context, entry *model.PriceHistoryEntry) error
	// GetHistory returns entries from the last sinceDays days, oldest first.
	GetHistory(ctx context.Context, productID string, sinceDays int) ([]model.PriceHistoryEntry, error)
}

// ReviewQueueStore persists review items and enforces their transitions.
type ReviewQueueStore interface {
	InsertReview(ctx context.Context, item *model.ReviewQueueItem) error
	GetReview(ctx context.Context, id string) (*model.ReviewQueueItem, error)
	// ListPendingReviews returns pending items, optionally for one priority,
	// ordered by priority then age.
	ListPendingReviews(ctx context.Context, priority *int) ([]model.ReviewQueueItem, error)
	// UpdateReviewStatus moves a pending item to a terminal status. It fails
	// with common.ErrAlreadyResolved if the item is no longer pending.
	UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, reviewer string, decision model.ReviewDecision) error
}

// AlertSink receives operator notifications. Implementations should not block
// the caller for long; failures are reported but never fatal.
type AlertSink interface {
	Emit(ctx context.Context, alert model.Alert) error
}

// EmbeddingProvider turns text into vectors for semantic search.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Similarity(a, b []float32) float64
}

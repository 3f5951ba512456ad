// Package review manages the human review queue and feeds decisions back
// into learned mappings.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
)

// DefaultMaxSuggestions bounds the suggestions stored with a review item.
const DefaultMaxSuggestions = 5

// Suggester proposes loosely similar products for a name.
type Suggester interface {
	Suggestions(ctx context.Context, name string, limit int) ([]model.Candidate, error)
}

// Manager moves review items through pending → approved | rejected | skipped.
type Manager struct {
	reviews        service.ReviewQueueStore
	catalog        service.CatalogStore
	linker         service.InvoiceItemLinker
	suggester      Suggester
	embedder       service.EmbeddingProvider
	maxSuggestions int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLinker records approved products against invoice lines.
func WithLinker(l service.InvoiceItemLinker) Option {
	return func(m *Manager) { m.linker = l }
}

// WithSuggester adds relaxed suggestions to the review context.
func WithSuggester(s Suggester) Option {
	return func(m *Manager) { m.suggester = s }
}

// WithEmbedder computes embeddings for products created from the queue.
func WithEmbedder(e service.EmbeddingProvider) Option {
	return func(m *Manager) { m.embedder = e }
}

// WithMaxSuggestions overrides DefaultMaxSuggestions.
func WithMaxSuggestions(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxSuggestions = n
		}
	}
}

// NewManager creates a review manager.
func NewManager(reviews service.ReviewQueueStore, catalog service.CatalogStore, opts ...Option) (*Manager, error) {
	if reviews == nil {
		return nil, fmt.Errorf("%w: review queue store", common.ErrMissingConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog store", common.ErrMissingConfig)
	}
	m := &Manager{
		reviews:        reviews,
		catalog:        catalog,
		maxSuggestions: DefaultMaxSuggestions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PriorityFor maps a routing to a queue priority. Lower is more urgent.
func PriorityFor(routing model.Routing) (int, error) {
	switch routing {
	case model.RoutingReviewPriority1, model.RoutingCreationQueue:
		return 1, nil
	case model.RoutingReviewPriority2:
		return 2, nil
	default:
		return 0, fmt.Errorf("routing %q: %w", routing, common.ErrNotReviewable)
	}
}

// Enqueue adds a line that needs a human decision.
func (m *Manager) Enqueue(ctx context.Context, match model.MatchResult, item model.LineItem, ref model.InvoiceRef) (*model.ReviewQueueItem, error) {
	priority, err := PriorityFor(match.Routing)
	if err != nil {
		return nil, err
	}

	queued := &model.ReviewQueueItem{
		InvoiceID:     ref.InvoiceID,
		InvoiceItemID: item.InvoiceItemID,
		VendorID:      ref.VendorID,
		OriginalName:  strings.TrimSpace(item.ProductName),
		Priority:      priority,
		Context: model.ReviewContext{
			Match:       match,
			LineItem:    item,
			Suggestions: m.suggestionsFor(ctx, match, item.ProductName),
		},
	}
	if queued.OriginalName == "" {
		queued.OriginalName = fmt.Sprintf("line %d", item.LineNumber)
	}

	if err := m.reviews.InsertReview(ctx, queued); err != nil {
		return nil, fmt.Errorf("failed to enqueue review: %w", err)
	}

	slog.Info("Queued line for review",
		"review_id", queued.ID,
		"name", queued.OriginalName,
		"priority", queued.Priority,
		"routing", match.Routing)
	return queued, nil
}

// suggestionsFor merges the match's alternatives with relaxed suggestions.
func (m *Manager) suggestionsFor(ctx context.Context, match model.MatchResult, name string) []model.Candidate {
	seen := map[string]bool{}
	if match.ProductID != "" {
		seen[match.ProductID] = true
	}

	var out []model.Candidate
	add := func(cands []model.Candidate) {
		for _, c := range cands {
			if len(out) >= m.maxSuggestions {
				return
			}
			if c.ProductID == "" || seen[c.ProductID] {
				continue
			}
			seen[c.ProductID] = true
			out = append(out, c)
		}
	}

	add(match.Alternatives)
	if m.suggester != nil && len(out) < m.maxSuggestions && strings.TrimSpace(name) != "" {
		extra, err := m.suggester.Suggestions(ctx, name, m.maxSuggestions)
		if err != nil {
			slog.Warn("Failed to load suggestions", "name", name, "error", err)
		} else {
			add(extra)
		}
	}
	return out
}

// ListPending returns pending items, optionally only those of one priority.
func (m *Manager) ListPending(ctx context.Context, priority *int) ([]model.ReviewQueueItem, error) {
	return m.reviews.ListPendingReviews(ctx, priority)
}

// Get returns a review item.
func (m *Manager) Get(ctx context.Context, id string) (*model.ReviewQueueItem, error) {
	return m.reviews.GetReview(ctx, id)
}

// Approve confirms productID for the item and teaches the mapping.
// Approving an item that was already approved with the same product is a no-op.
func (m *Manager) Approve(ctx context.Context, id, productID, reviewer string, confidence *float64) (*model.ReviewQueueItem, error) {
	return m.approve(ctx, id, productID, reviewer, confidence, model.ActionApprove)
}

func (m *Manager) approve(ctx context.Context, id, productID, reviewer string, confidence *float64, action string) (*model.ReviewQueueItem, error) {
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return nil, fmt.Errorf("%w: confidence must be between 0 and 1", common.ErrInvalidConfig)
	}

	item, err := m.reviews.GetReview(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		if alreadyApproved(item, productID) {
			return item, nil
		}
		return nil, fmt.Errorf("review %s is %s: %w", id, item.Status, common.ErrAlreadyResolved)
	}

	product, err := m.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", productID, err)
	}

	// The item stays pending until the mapping is stored, so a failed
	// approval can be retried.
	mappingConfidence := 1.0
	if confidence != nil {
		mappingConfidence = *confidence
	}
	if err := m.learn(ctx, item, product, reviewer, mappingConfidence); err != nil {
		return nil, err
	}

	decision := model.ReviewDecision{Action: action, ProductID: productID, Confidence: confidence}
	if err := m.reviews.UpdateReviewStatus(ctx, id, model.ReviewApproved, reviewer, decision); err != nil {
		if errors.Is(err, common.ErrAlreadyResolved) {
			if current, getErr := m.reviews.GetReview(ctx, id); getErr == nil && alreadyApproved(current, productID) {
				return current, nil
			}
		}
		return nil, err
	}

	slog.Info("Approved review",
		"review_id", id,
		"product_id", productID,
		"reviewer", reviewer)
	return m.reviews.GetReview(ctx, id)
}

// Reject closes the item. When correctProductID is set the correction is
// learned like an approval.
func (m *Manager) Reject(ctx context.Context, id, reviewer, reason, correctProductID string) (*model.ReviewQueueItem, error) {
	item, err := m.reviews.GetReview(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, fmt.Errorf("review %s is %s: %w", id, item.Status, common.ErrAlreadyResolved)
	}

	var product *model.Product
	if correctProductID != "" {
		if product, err = m.catalog.GetProduct(ctx, correctProductID); err != nil {
			return nil, fmt.Errorf("failed to load product %s: %w", correctProductID, err)
		}
	}

	if product != nil {
		if err := m.learn(ctx, item, product, reviewer, 1.0); err != nil {
			return nil, err
		}
	}

	decision := model.ReviewDecision{Action: model.ActionReject, ProductID: correctProductID, Reason: reason}
	if err := m.reviews.UpdateReviewStatus(ctx, id, model.ReviewRejected, reviewer, decision); err != nil {
		return nil, err
	}

	slog.Info("Rejected review", "review_id", id, "reviewer", reviewer, "correct_product_id", correctProductID)
	return m.reviews.GetReview(ctx, id)
}

// Skip closes the item without a decision about the product.
func (m *Manager) Skip(ctx context.Context, id, reviewer, reason string) (*model.ReviewQueueItem, error) {
	decision := model.ReviewDecision{Action: model.ActionSkip, Reason: reason}
	if err := m.reviews.UpdateReviewStatus(ctx, id, model.ReviewSkipped, reviewer, decision); err != nil {
		return nil, err
	}
	return m.reviews.GetReview(ctx, id)
}

// CreateNewProduct adds a catalog product for an unmatched line and approves
// the item against it.
func (m *Manager) CreateNewProduct(ctx context.Context, id string, attrs model.NewProduct, reviewer string) (*model.Product, *model.ReviewQueueItem, error) {
	item, err := m.reviews.GetReview(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if item.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("review %s is %s: %w", id, item.Status, common.ErrAlreadyResolved)
	}

	product := &model.Product{
		Name:     strings.TrimSpace(attrs.Name),
		Brand:    attrs.Brand,
		Category: attrs.Category,
		Barcode:  attrs.Barcode,
		Cost:     attrs.Cost,
		Currency: attrs.Currency,
		Size:     attrs.Size,
		Unit:     attrs.Unit,
	}
	if product.Name == "" {
		product.Name = item.OriginalName
	}
	if product.Barcode == "" {
		product.Barcode = item.Context.LineItem.Barcode
	}

	if m.embedder != nil {
		vector, err := m.embedder.Embed(ctx, product.Name)
		if err != nil {
			slog.Warn("Failed to embed new product", "name", product.Name, "error", err)
		} else {
			product.Embedding = vector
		}
	}

	if err := m.catalog.CreateProduct(ctx, product); err != nil {
		return nil, nil, fmt.Errorf("failed to create product: %w", err)
	}
	slog.Info("Created product from review", "review_id", id, "product_id", product.ID, "name", product.Name)

	approved, err := m.approve(ctx, id, product.ID, reviewer, nil, model.ActionCreate)
	if err != nil {
		return product, nil, err
	}
	return product, approved, nil
}

// learn upserts the human mapping and links the invoice line.
func (m *Manager) learn(ctx context.Context, item *model.ReviewQueueItem, product *model.Product, reviewer string, confidence float64) error {
	mapping := &model.ProductMapping{
		OriginalName: item.OriginalName,
		VendorID:     item.VendorID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		Source:       model.MappingSourceHuman,
		CreatedBy:    reviewer,
		Confidence:   confidence,
	}
	if err := m.catalog.UpsertMapping(ctx, mapping); err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	if m.linker != nil && item.InvoiceItemID != "" {
		if err := m.linker.LinkInvoiceItem(ctx, item.InvoiceItemID, product.ID); err != nil {
			return fmt.Errorf("failed to link invoice item: %w", err)
		}
	}
	return nil
}

func alreadyApproved(item *model.ReviewQueueItem, productID string) bool {
	return item.Status == model.ReviewApproved && item.Decision != nil && item.Decision.ProductID == productID
}

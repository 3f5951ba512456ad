// Package pipeline runs invoices through matching, pricing and review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/metrics"
	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/vendorrules"
)

// Config controls invoice processing.
type Config struct {
	Concurrency         int           `mapstructure:"concurrency"`
	ItemTimeout         time.Duration `mapstructure:"item_timeout"`
	PromoteAutoMatches  bool          `mapstructure:"promote_auto_matches"`
	PromotionConfidence float64       `mapstructure:"promotion_confidence"`
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:         4,
		ItemTimeout:         30 * time.Second,
		PromotionConfidence: 0.95,
	}
}

// Matcher resolves a line item to a product.
type Matcher interface {
	Match(ctx context.Context, item model.LineItem, vendorID string) (model.MatchResult, error)
}

// PriceApplier validates and writes a product cost.
type PriceApplier interface {
	ApplyUpdate(ctx context.Context, productID string, newCost float64, currency string, ref model.InvoiceRef) (model.PriceUpdateResult, error)
}

// ReviewQueue accepts lines that need a human decision.
type ReviewQueue interface {
	Enqueue(ctx context.Context, match model.MatchResult, item model.LineItem, ref model.InvoiceRef) (*model.ReviewQueueItem, error)
}

// MappingWriter stores promoted mappings.
type MappingWriter interface {
	UpsertMapping(ctx context.Context, mapping *model.ProductMapping) error
}

// Coordinator wires the stages together.
type Coordinator struct {
	matcher  Matcher
	prices   PriceApplier
	reviews  ReviewQueue
	mappings MappingWriter
	metrics  *metrics.Registry
	rules    *vendorrules.Rules
	cfg      Config
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMappings enables storing promoted system mappings.
func WithMappings(w MappingWriter) Option {
	return func(c *Coordinator) { c.mappings = w }
}

// WithMetrics records pipeline metrics.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Coordinator) { c.metrics = r }
}

// WithVendorRules supplies default currencies for vendors.
func WithVendorRules(r *vendorrules.Rules) Option {
	return func(c *Coordinator) { c.rules = r }
}

// New creates a coordinator.
func New(matcher Matcher, prices PriceApplier, reviews ReviewQueue, cfg Config, opts ...Option) (*Coordinator, error) {
	if matcher == nil || prices == nil || reviews == nil {
		return nil, fmt.Errorf("%w: matcher, price applier and review queue are required", common.ErrMissingConfig)
	}
	defaults := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaults.ItemTimeout
	}
	if cfg.PromotionConfidence <= 0 {
		cfg.PromotionConfidence = defaults.PromotionConfidence
	}

	c := &Coordinator{
		matcher: matcher,
		prices:  prices,
		reviews: reviews,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ProcessInvoice matches every line, applies auto-approved prices and queues
// the rest for review. A failing line is recorded in the report and never
// stops its siblings; the returned error is reserved for unusable input or a
// cancelled context.
func (c *Coordinator) ProcessInvoice(ctx context.Context, inv *model.Invoice) (*model.InvoiceReport, error) {
	if inv == nil {
		return nil, errors.New("invoice cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ref := inv.Ref
	slog.Info("Processing invoice",
		"invoice_id", ref.InvoiceID,
		"vendor_id", ref.VendorID,
		"items", len(inv.Items))

	outcomes := make([]model.ItemOutcome, len(inv.Items))
	c.matchAll(ctx, inv, outcomes)
	c.dispatch(ctx, inv, outcomes)

	report := c.report(ref.InvoiceID, outcomes)
	report.Duration = time.Since(start)
	c.metrics.ObserveInvoice(report.Duration)

	slog.Info("Invoice processed",
		"invoice_id", ref.InvoiceID,
		"auto_approved", report.AutoApproved,
		"needs_review", report.NeedsReview,
		"created", report.Created,
		"price_updates", report.PriceUpdates,
		"price_skipped", report.PriceSkipped,
		"failures", report.Failures,
		"duration", report.Duration)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (c *Coordinator) matchAll(ctx context.Context, inv *model.Invoice, outcomes []model.ItemOutcome) {
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	for i := range inv.Items {
		item := inv.Items[i]
		outcomes[i].LineNumber = item.LineNumber
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, c.cfg.ItemTimeout)
			defer cancel()

			began := time.Now()
			match, err := c.matcher.Match(itemCtx, item, inv.Ref.VendorID)
			if err != nil {
				c.fail(&outcomes[i], "match", err)
				return nil
			}
			c.metrics.ObserveMatch(match, time.Since(began))
			outcomes[i].Match = match
			return nil
		})
	}
	_ = g.Wait()
}

// dispatch applies prices per product, serially within a product so its
// history is appended in line order, and enqueues everything else.
func (c *Coordinator) dispatch(ctx context.Context, inv *model.Invoice, outcomes []model.ItemOutcome) {
	groups := make(map[string][]int)
	var order []string
	var reviews []int

	for i := range outcomes {
		o := &outcomes[i]
		if o.Failed {
			continue
		}
		if o.Match.Routing == model.RoutingAutoApprove && o.Match.ProductID != "" {
			id := o.Match.ProductID
			if _, ok := groups[id]; !ok {
				order = append(order, id)
			}
			groups[id] = append(groups[id], i)
			continue
		}
		reviews = append(reviews, i)
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	for _, productID := range order {
		indexes := groups[productID]
		g.Go(func() error {
			for _, i := range indexes {
				c.applyPrice(ctx, inv, &inv.Items[i], &outcomes[i])
			}
			return nil
		})
	}
	for _, i := range reviews {
		g.Go(func() error {
			c.enqueue(ctx, inv.Ref, &inv.Items[i], &outcomes[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) applyPrice(ctx context.Context, inv *model.Invoice, item *model.LineItem, o *model.ItemOutcome) {
	itemCtx, cancel := context.WithTimeout(ctx, c.cfg.ItemTimeout)
	defer cancel()

	result, err := c.prices.ApplyUpdate(itemCtx, o.Match.ProductID, item.UnitCost(), c.currencyFor(inv, item), inv.Ref)
	result.LineNumber = item.LineNumber
	o.Price = &result
	c.metrics.ObservePriceUpdate(result.Status)
	if err != nil {
		c.fail(o, "price", err)
		return
	}

	c.promote(itemCtx, inv.Ref, item, o.Match)
}

func (c *Coordinator) enqueue(ctx context.Context, ref model.InvoiceRef, item *model.LineItem, o *model.ItemOutcome) {
	itemCtx, cancel := context.WithTimeout(ctx, c.cfg.ItemTimeout)
	defer cancel()

	queued, err := c.reviews.Enqueue(itemCtx, o.Match, *item, ref)
	if err != nil {
		c.fail(o, "review", err)
		return
	}
	o.ReviewID = queued.ID
	c.metrics.ObserveReview(queued.Priority)
}

// promote stores a system mapping for a confident automatic match so the next
// occurrence of the name resolves at the first strategy.
func (c *Coordinator) promote(ctx context.Context, ref model.InvoiceRef, item *model.LineItem, match model.MatchResult) {
	if !c.cfg.PromoteAutoMatches || c.mappings == nil {
		return
	}
	if match.Strategy == model.StrategyLearnedMapping || match.Confidence < c.cfg.PromotionConfidence {
		return
	}

	mapping := &model.ProductMapping{
		OriginalName: item.ProductName,
		VendorID:     ref.VendorID,
		ProductID:    match.ProductID,
		ProductName:  match.ProductName,
		Source:       model.MappingSourceSystem,
		CreatedBy:    ref.Actor,
		Confidence:   match.Confidence,
	}
	if err := c.mappings.UpsertMapping(ctx, mapping); err != nil {
		slog.Warn("Failed to promote mapping",
			"name", item.ProductName,
			"product_id", match.ProductID,
			"error", err)
	}
}

func (c *Coordinator) currencyFor(inv *model.Invoice, item *model.LineItem) string {
	if cur := inv.ItemCurrency(*item); cur != "" {
		return cur
	}
	return c.rules.Currency(inv.Ref.VendorID)
}

func (c *Coordinator) fail(o *model.ItemOutcome, stage string, err error) {
	o.Failed = true
	o.Error = fmt.Sprintf("%s: %v", stage, err)
	c.metrics.ObserveFailure()
	slog.Error("Failed to process line item",
		"line", o.LineNumber,
		"stage", stage,
		"error", err)
}

func (c *Coordinator) report(invoiceID string, outcomes []model.ItemOutcome) *model.InvoiceReport {
	report := &model.InvoiceReport{InvoiceID: invoiceID, Items: outcomes}
	sort.SliceStable(report.Items, func(i, j int) bool {
		return report.Items[i].LineNumber < report.Items[j].LineNumber
	})

	for _, o := range report.Items {
		if o.Failed {
			report.Failures++
		}
		switch o.Match.Routing {
		case model.RoutingAutoApprove:
			if o.Match.ProductID != "" && o.Price != nil {
				report.AutoApproved++
			}
		case model.RoutingReviewPriority1, model.RoutingReviewPriority2:
			if o.ReviewID != "" {
				report.NeedsReview++
			}
		case model.RoutingCreationQueue:
			if o.ReviewID != "" {
				report.Created++
			}
		}
		if o.Price == nil {
			continue
		}
		switch o.Price.Status {
		case model.UpdateStatusUpdated:
			report.PriceUpdates++
		case model.UpdateStatusSkipped:
			report.PriceSkipped++
			report.SkippedReasons = append(report.SkippedReasons, fmt.Sprintf("line %d: %s", o.LineNumber, o.Price.Reason))
		}
	}
	return report
}

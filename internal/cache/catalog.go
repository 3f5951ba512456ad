package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
)

const fuzzyCatalogKey = "catalog:fuzzy"

// CachedCatalog serves the fuzzy-match catalog listing from a Store and
// delegates everything else. Learned mappings are never cached so review
// decisions are visible to the next match immediately.
type CachedCatalog struct {
	service.CatalogStore
	store Store
	ttl   time.Duration
}

// NewCachedCatalog wraps catalog. A zero ttl defaults to five minutes.
func NewCachedCatalog(catalog service.CatalogStore, store Store, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{CatalogStore: catalog, store: store, ttl: ttl}
}

// ListForFuzzyMatch returns the cached snapshot, loading it on a miss.
// Cache failures fall through to the underlying catalog.
func (c *CachedCatalog) ListForFuzzyMatch(ctx context.Context) ([]model.CatalogEntry, error) {
	if raw, ok, err := c.store.Get(ctx, fuzzyCatalogKey); err != nil {
		slog.Warn("Catalog cache read failed", "error", err)
	} else if ok {
		var entries []model.CatalogEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
	}

	entries, err := c.CatalogStore.ListForFuzzyMatch(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(entries); err == nil {
		if err := c.store.Set(ctx, fuzzyCatalogKey, raw, c.ttl); err != nil {
			slog.Warn("Catalog cache write failed", "error", err)
		}
	}
	return entries, nil
}

// CreateProduct inserts a product and drops the cached snapshot.
func (c *CachedCatalog) CreateProduct(ctx context.Context, product *model.Product) error {
	if err := c.CatalogStore.CreateProduct(ctx, product); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops the cached snapshot.
func (c *CachedCatalog) Invalidate(ctx context.Context) {
	if err := c.store.Delete(ctx, fuzzyCatalogKey); err != nil {
		slog.Warn("Catalog cache invalidation failed", "error", err)
	}
}

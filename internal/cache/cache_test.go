package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
)

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(0)
	defer func() { _ = store.Close() }()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries must not be returned")

	require.NoError(t, store.Delete(ctx, "k"))
	assert.Equal(t, 0, store.Len())
}

type countingCatalog struct {
	service.CatalogStore
	entries []model.CatalogEntry
	lists   int
	created []*model.Product
}

func (c *countingCatalog) ListForFuzzyMatch(_ context.Context) ([]model.CatalogEntry, error) {
	c.lists++
	return c.entries, nil
}

func (c *countingCatalog) CreateProduct(_ context.Context, p *model.Product) error {
	c.created = append(c.created, p)
	c.entries = append(c.entries, model.CatalogEntry{ID: p.ID, Name: p.Name})
	return nil
}

func TestCachedCatalog(t *testing.T) {
	ctx := context.Background()
	inner := &countingCatalog{entries: []model.CatalogEntry{{ID: "p1", Name: "DEEP CASHEW WHOLE 7OZ"}}}
	store := NewMemoryStore(0)
	defer func() { _ = store.Close() }()

	catalog := NewCachedCatalog(inner, store, time.Minute)

	first, err := catalog.ListForFuzzyMatch(ctx)
	require.NoError(t, err)
	second, err := catalog.ListForFuzzyMatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.lists, "second listing should come from the cache")

	require.NoError(t, catalog.CreateProduct(ctx, &model.Product{ID: "p2", Name: "HALDIRAM BHUJIA 200G"}))
	third, err := catalog.ListForFuzzyMatch(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, inner.lists)
}

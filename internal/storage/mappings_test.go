package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func TestUpsertMapping_IsIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProduct(t, store, model.Product{Name: "DEEP CASHEW WHOLE 7OZ"})

	for i := 0; i < 2; i++ {
		require.NoError(t, store.UpsertMapping(ctx, &model.ProductMapping{
			OriginalName: "DEEP CASHEW WHOLE 7OZ (20)",
			VendorID:     "JETRO",
			ProductID:    p.ID,
			Confidence:   1.0,
			Source:       model.MappingSourceHuman,
			CreatedBy:    "alice",
		}))
	}

	mappings, err := store.ListMappings(ctx, "*")
	require.NoError(t, err)
	require.Len(t, mappings, 1, "one row per (name, vendor)")
	assert.Equal(t, 2, mappings[0].UseCount)
	assert.Equal(t, "DEEP CASHEW WHOLE 7OZ", mappings[0].ProductName)
}

func TestGetLearnedMapping_VendorThenGlobal(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	vendorProduct := seedProduct(t, store, model.Product{Name: "VENDOR SPECIFIC"})
	globalProduct := seedProduct(t, store, model.Product{Name: "GLOBAL"})

	require.NoError(t, store.UpsertMapping(ctx, &model.ProductMapping{
		OriginalName: "MYSTERY ITEM", VendorID: "", ProductID: globalProduct.ID,
		Confidence: 1, Source: model.MappingSourceHuman,
	}))

	got, err := store.GetLearnedMapping(ctx, "mystery item", "JETRO")
	require.NoError(t, err)
	assert.Equal(t, globalProduct.ID, got.ProductID, "falls back to the global mapping")

	require.NoError(t, store.UpsertMapping(ctx, &model.ProductMapping{
		OriginalName: "MYSTERY ITEM", VendorID: "JETRO", ProductID: vendorProduct.ID,
		Confidence: 1, Source: model.MappingSourceHuman,
	}))

	got, err = store.GetLearnedMapping(ctx, "MYSTERY ITEM", "JETRO")
	require.NoError(t, err)
	assert.Equal(t, vendorProduct.ID, got.ProductID, "vendor mapping wins")

	_, err = store.GetLearnedMapping(ctx, "UNKNOWN", "JETRO")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpsertMapping_SystemDoesNotOverrideHuman(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	human := seedProduct(t, store, model.Product{Name: "HUMAN CHOICE"})
	system := seedProduct(t, store, model.Product{Name: "SYSTEM CHOICE"})

	require.NoError(t, store.UpsertMapping(ctx, &model.ProductMapping{
		OriginalName: "ITEM", ProductID: human.ID, Confidence: 0.9, Source: model.MappingSourceHuman,
	}))

	m := &model.ProductMapping{OriginalName: "ITEM", ProductID: system.ID, Confidence: 0.99, Source: model.MappingSourceSystem}
	require.NoError(t, store.UpsertMapping(ctx, m))
	assert.Equal(t, human.ID, m.ProductID, "stored mapping is still the human one")

	got, err := store.GetLearnedMapping(ctx, "ITEM", "")
	require.NoError(t, err)
	assert.Equal(t, model.MappingSourceHuman, got.Source)
}

func TestMappingCache_SeesUpdates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := seedProduct(t, store, model.Product{Name: "A"})
	b := seedProduct(t, store, model.Product{Name: "B"})

	require.NoError(t, store.UpsertMapping(ctx, &model.ProductMapping{
		OriginalName: "RAW", ProductID: a.ID, Confidence: 1, Source: model.MappingSourceHuman,
	}))
	require.NoError(t, store.WarmMappingCache(ctx))
	assert.NotNil(t, store.getCachedMapping(mappingCacheKey("RAW", "")))

	require.NoError(t, store.UpsertMapping(ctx, &model.ProductMapping{
		OriginalName: "raw", ProductID: b.ID, Confidence: 1, Source: model.MappingSourceHuman,
	}))

	got, err := store.GetLearnedMapping(ctx, "RAW", "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ProductID)
}

func TestUpsertMapping_FailedWriteLeavesCacheClean(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := seedProduct(t, store, model.Product{Name: "A"})
	key := mappingCacheKey("RAW", "JETRO")

	require.NoError(t, store.UpsertMapping(ctx, &model.ProductMapping{
		OriginalName: "RAW", VendorID: "JETRO", ProductID: a.ID, Confidence: 1, Source: model.MappingSourceHuman,
	}))
	cached := store.getCachedMapping(key)
	require.NotNil(t, cached)
	assert.Equal(t, a.ID, cached.ProductID)

	err := store.UpsertMapping(ctx, &model.ProductMapping{
		OriginalName: "RAW", VendorID: "JETRO", ProductID: "no-such-product", Confidence: 1, Source: model.MappingSourceHuman,
	})
	require.Error(t, err)
	assert.Nil(t, store.getCachedMapping(key))

	got, err := store.GetLearnedMapping(ctx, "RAW", "JETRO")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ProductID)
	assert.Equal(t, 1, got.UseCount)
}

func TestDeleteMapping(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProduct(t, store, model.Product{Name: "A"})
	m := &model.ProductMapping{OriginalName: "RAW", ProductID: p.ID, Confidence: 1, Source: model.MappingSourceHuman}
	require.NoError(t, store.UpsertMapping(ctx, m))

	require.NoError(t, store.DeleteMapping(ctx, m.ID))
	_, err := store.GetLearnedMapping(ctx, "RAW", "")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, store.DeleteMapping(ctx, m.ID), common.ErrNotFound)
}

func TestUpsertMapping_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	tests := []struct {
		mapping *model.ProductMapping
		name    string
	}{
		{name: "missing name", mapping: &model.ProductMapping{ProductID: "p", Confidence: 1, Source: model.MappingSourceHuman}},
		{name: "missing product", mapping: &model.ProductMapping{OriginalName: "x", Confidence: 1, Source: model.MappingSourceHuman}},
		{name: "confidence out of range", mapping: &model.ProductMapping{OriginalName: "x", ProductID: "p", Confidence: 1.5, Source: model.MappingSourceHuman}},
		{name: "unknown source", mapping: &model.ProductMapping{OriginalName: "x", ProductID: "p", Confidence: 1, Source: "robot"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.UpsertMapping(context.Background(), tt.mapping), ErrInvalidMapping)
		})
	}
}

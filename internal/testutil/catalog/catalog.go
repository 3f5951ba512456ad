// Package catalog seeds catalog products for tests through a fluent builder.
//
// Example usage:
//
//	products, err := catalog.NewBuilder(t).
//		WithGroceryCatalog().
//		WithProduct(model.Product{Name: "AMUL GHEE 1L", Brand: "AMUL"}).
//		Build(ctx, store)
package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
)

// ProductName is a fixture product name.
type ProductName string

// Grocery fixture names.
const (
	DeepCashew     ProductName = "DEEP CASHEW WHOLE 7OZ"
	HaldiramBhujia ProductName = "HALDIRAM BHUJIA SEV 200G"
	ShanBiryani    ProductName = "SHAN BIRYANI MASALA 50G"
	MTRRavaIdli    ProductName = "MTR RAVA IDLI MIX 500G"
	KesarMangoPulp ProductName = "KESAR ALPHONSO MANGO PULP 850G"
)

// ShanBiryaniBarcode is the barcode carried by the ShanBiryani fixture.
const ShanBiryaniBarcode = "012345678905"

func cost(v float64) *float64 { return &v }

// groceries returns fresh copies so callers can mutate them freely.
func groceries() []model.Product {
	return []model.Product{
		{Name: string(DeepCashew), Brand: "DEEP", Category: "Nuts", Size: "7OZ", Unit: "oz", Currency: "USD"},
		{Name: string(HaldiramBhujia), Brand: "HALDIRAM", Category: "Snacks", Size: "200G", Unit: "g", Currency: "USD"},
		{Name: string(ShanBiryani), Brand: "SHAN", Category: "Spices", Barcode: ShanBiryaniBarcode, Size: "50G", Unit: "g", Currency: "USD", Cost: cost(10)},
		{Name: string(MTRRavaIdli), Brand: "MTR", Category: "Ready Mix", Size: "500G", Unit: "g", Currency: "USD", Cost: cost(3.49)},
		{Name: string(KesarMangoPulp), Category: "Canned", Size: "850G", Unit: "g", Currency: "USD"},
	}
}

// Builder collects products to seed.
type Builder struct {
	t        *testing.T
	products []model.Product
}

// NewBuilder creates a builder for the given test.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithProduct adds a single product.
func (b *Builder) WithProduct(p model.Product) *Builder {
	b.products = append(b.products, p)
	return b
}

// WithGroceryCatalog adds the standard grocery fixture.
func (b *Builder) WithGroceryCatalog() *Builder {
	b.products = append(b.products, groceries()...)
	return b
}

// Build creates every product in order and returns them with ids assigned.
func (b *Builder) Build(ctx context.Context, store service.CatalogStore) (Products, error) {
	b.t.Helper()

	result := make(Products, 0, len(b.products))
	for _, p := range b.products {
		if err := store.CreateProduct(ctx, &p); err != nil {
			return nil, fmt.Errorf("failed to seed product %q: %w", p.Name, err)
		}
		result = append(result, p)
	}
	return result, nil
}

// Products is a seeded catalog.
type Products []model.Product

// Find returns the product with the given name, or nil.
func (ps Products) Find(name ProductName) *model.Product {
	for i := range ps {
		if ps[i].Name == string(name) {
			return &ps[i]
		}
	}
	return nil
}

// MustFind returns the product with the given name or fails the test.
func (ps Products) MustFind(t *testing.T, name ProductName) model.Product {
	t.Helper()
	p := ps.Find(name)
	if p == nil {
		t.Fatalf("product %q not found in test catalog", name)
	}
	return *p
}

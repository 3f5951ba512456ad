// Package testutil provides test helpers for storage-backed tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-price-must-flow/internal/storage"
	"github.com/Veraticus/the-price-must-flow/internal/testutil/catalog"
)

// TestDB is a migrated in-memory database with its seeded catalog.
type TestDB struct {
	Storage  *storage.SQLiteStorage
	t        *testing.T
	Products catalog.Products
}

// SetupTestDB creates a migrated in-memory database that is closed when the
// test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &TestDB{Storage: store, t: t}
}

// SetupTestDBWithCatalog creates a test database and seeds the products the
// configure function adds.
//
// Example:
//
//	db := testutil.SetupTestDBWithCatalog(t, func(b *catalog.Builder) *catalog.Builder {
//		return b.WithGroceryCatalog()
//	})
func SetupTestDBWithCatalog(t *testing.T, configure func(*catalog.Builder) *catalog.Builder) *TestDB {
	t.Helper()

	db := SetupTestDB(t)
	builder := catalog.NewBuilder(t)
	if configure != nil {
		builder = configure(builder)
	}

	products, err := builder.Build(context.Background(), db.Storage)
	if err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	db.Products = products
	return db
}

// MustProduct returns the seeded product with the given name or fails the test.
func (db *TestDB) MustProduct(name catalog.ProductName) string {
	db.t.Helper()
	return db.Products.MustFind(db.t, name).ID
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/embedding"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

const productColumns = `id, name, brand, category, barcode, cost, currency, size, unit, embedding, version, created_at, updated_at`

// maxKeywordFilters bounds how many keywords narrow a brand search.
const maxKeywordFilters = 3

// CreateProduct inserts a new catalog product, assigning an ID when empty.
func (s *SQLiteStorage) CreateProduct(ctx context.Context, product *model.Product) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProduct(product); err != nil {
		return err
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.Currency == "" {
		product.Currency = "USD"
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	var embeddingJSON sql.NullString
	if len(product.Embedding) > 0 {
		raw, err := json.Marshal(product.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, name_key, brand, category, barcode, cost, currency, size, unit, embedding, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, product.ID, product.Name, nameKey(product.Name), nullString(product.Brand), nullString(product.Category),
		nullString(product.Barcode), nullFloat(product.Cost), product.Currency, nullString(product.Size),
		nullString(product.Unit), embeddingJSON, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return fmt.Errorf("%w: product %q", common.ErrDuplicateEntry, product.Name)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	product.Version = 0
	return nil
}

// SetProductEmbedding stores the embedding used by similarity search.
func (s *SQLiteStorage) SetProductEmbedding(ctx context.Context, productID string, vector []float32) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET embedding = ? WHERE id = ?`, string(raw), productID)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return requireAffected(res, "product", productID)
}

// GetProduct returns the product with the given ID.
func (s *SQLiteStorage) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getProductWhere(ctx, s.db, "id = ?", id)
}

// GetProductByBarcode returns the product carrying barcode.
func (s *SQLiteStorage) GetProductByBarcode(ctx context.Context, barcode string) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(barcode, "barcode"); err != nil {
		return nil, err
	}
	return s.getProductWhere(ctx, s.db, "barcode = ?", strings.TrimSpace(barcode))
}

// GetProductByExactName returns the oldest product whose name equals name,
// ignoring case and repeated whitespace.
func (s *SQLiteStorage) GetProductByExactName(ctx context.Context, name string) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	return s.getProductWhere(ctx, s.db, "name_key = ? ORDER BY created_at, id LIMIT 1", nameKey(name))
}

func (s *SQLiteStorage) getProductWhere(ctx context.Context, q queryable, where string, args ...any) (*model.Product, error) {
	row := q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+where, args...)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// SearchByBrandAndKeywords returns up to ten products of brand whose names
// contain the first few keywords.
func (s *SQLiteStorage) SearchByBrandAndKeywords(ctx context.Context, brand string, keywords []string) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var clauses []string
	var args []any

	if b := nameKey(brand); b != "" {
		clauses = append(clauses, "(UPPER(COALESCE(brand, '')) LIKE ? OR name_key LIKE ?)")
		args = append(args, "%"+b+"%", b+" %")
	}
	for i, kw := range keywords {
		if i >= maxKeywordFilters {
			break
		}
		clauses = append(clauses, "name_key LIKE ?")
		args = append(args, "%"+nameKey(kw)+"%")
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY created_at, id LIMIT 10`
	return s.queryProducts(ctx, query, args...)
}

// SearchBySimilarity scores every embedded product against vector and returns
// those at or above threshold, best first.
func (s *SQLiteStorage) SearchBySimilarity(ctx context.Context, vector []float32, threshold float64) ([]model.ScoredProduct, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: vector", ErrNilParameter)
	}

	products, err := s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE embedding IS NOT NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}

	var results []model.ScoredProduct
	for i := range products {
		sim := embedding.Cosine(vector, products[i].Embedding)
		if sim < threshold {
			continue
		}
		results = append(results, model.ScoredProduct{CatalogEntry: entryFor(&products[i]), Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results, nil
}

// ListForFuzzyMatch returns the whole catalog as lightweight entries.
func (s *SQLiteStorage) ListForFuzzyMatch(ctx context.Context) ([]model.CatalogEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(brand, ''), COALESCE(size, ''), COALESCE(unit, ''), COALESCE(category, '')
		FROM products
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Brand, &e.Size, &e.Unit, &e.Category); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListProducts returns every product, oldest first.
func (s *SQLiteStorage) ListProducts(ctx context.Context) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
}

func (s *SQLiteStorage) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []model.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*model.Product, error) {
	var (
		p                                    model.Product
		brand, category, barcode, size, unit sql.NullString
		embeddingJSON                        sql.NullString
		cost                                 sql.NullFloat64
	)
	if err := row.Scan(&p.ID, &p.Name, &brand, &category, &barcode, &cost, &p.Currency,
		&size, &unit, &embeddingJSON, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Brand = brand.String
	p.Category = category.String
	p.Barcode = barcode.String
	p.Size = size.String
	p.Unit = unit.String
	p.Cost = floatPtr(cost)
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &p.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func entryFor(p *model.Product) model.CatalogEntry {
	return model.CatalogEntry{
		ID:       p.ID,
		Name:     p.Name,
		Brand:    p.Brand,
		Size:     p.Size,
		Unit:     p.Unit,
		Category: p.Category,
	}
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, common.ErrNotFound)
	}
	return nil
}

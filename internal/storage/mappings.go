package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

const mappingCacheTTL = 5 * time.Minute

const mappingSelect = `
	SELECT m.id, m.original_name, m.vendor_id, m.product_id, p.name, m.confidence, m.source,
		m.use_count, COALESCE(m.created_by, ''), m.created_at, m.updated_at
	FROM product_mappings m
	JOIN products p ON p.id = m.product_id`

func mappingCacheKey(lookupKey, vendorID string) string {
	return vendorID + "\x00" + lookupKey
}

// GetLearnedMapping returns the mapping for originalName from vendorID,
// falling back to a vendor-independent mapping.
func (s *SQLiteStorage) GetLearnedMapping(ctx context.Context, originalName, vendorID string) (*model.ProductMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(originalName, "originalName"); err != nil {
		return nil, err
	}

	key := nameKey(originalName)
	scopes := []string{vendorID}
	if vendorID != "" {
		scopes = append(scopes, "")
	}

	for _, scope := range scopes {
		if mapping := s.getCachedMapping(mappingCacheKey(key, scope)); mapping != nil {
			return mapping, nil
		}
		mapping, err := queryMapping(ctx, s.db, key, scope)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.cacheMapping(mappingCacheKey(key, scope), mapping)
		return mapping, nil
	}

	return nil, fmt.Errorf("mapping for %q: %w", originalName, common.ErrNotFound)
}

func queryMapping(ctx context.Context, q queryable, lookupKey, vendorID string) (*model.ProductMapping, error) {
	row := q.QueryRowContext(ctx, mappingSelect+` WHERE m.lookup_key = ? AND m.vendor_id = ?`, lookupKey, vendorID)
	mapping, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return mapping, nil
}

// UpsertMapping creates or replaces the mapping for (original name, vendor).
// A system mapping never replaces a human one.
func (s *SQLiteStorage) UpsertMapping(ctx context.Context, mapping *model.ProductMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMapping(mapping); err != nil {
		return err
	}

	key := nameKey(mapping.OriginalName)
	cacheKey := mappingCacheKey(key, mapping.VendorID)
	now := s.now()

	var stored *model.ProductMapping
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_mappings (original_name, lookup_key, vendor_id, product_id, confidence, source, use_count, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT(lookup_key, vendor_id) DO UPDATE SET
				original_name = excluded.original_name,
				product_id = excluded.product_id,
				confidence = excluded.confidence,
				source = excluded.source,
				created_by = excluded.created_by,
				use_count = product_mappings.use_count + 1,
				updated_at = excluded.updated_at
			WHERE product_mappings.source = 'system' OR excluded.source = 'human'
		`, mapping.OriginalName, key, mapping.VendorID, mapping.ProductID, mapping.Confidence,
			string(mapping.Source), nullString(mapping.CreatedBy), now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert mapping: %w", err)
		}

		stored, err = queryMapping(ctx, tx, key, mapping.VendorID)
		return err
	})
	if err != nil {
		s.invalidateMapping(cacheKey)
		return err
	}

	// Only committed rows reach the cache.
	s.cacheMapping(cacheKey, stored)
	*mapping = *stored
	return nil
}

// ListMappings returns mappings for vendorID, or all mappings when vendorID is "*".
func (s *SQLiteStorage) ListMappings(ctx context.Context, vendorID string) ([]model.ProductMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := mappingSelect
	var args []any
	if vendorID != "*" {
		query += ` WHERE m.vendor_id = ?`
		args = append(args, vendorID)
	}
	query += ` ORDER BY m.vendor_id, m.lookup_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.ProductMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// DeleteMapping removes a mapping by ID.
func (s *SQLiteStorage) DeleteMapping(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM product_mappings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	if err := requireAffected(res, "mapping", fmt.Sprint(id)); err != nil {
		return err
	}

	s.cacheMutex.Lock()
	s.mappingCache = make(map[string]*model.ProductMapping)
	s.cacheMutex.Unlock()
	return nil
}

// WarmMappingCache loads all mappings into the cache.
func (s *SQLiteStorage) WarmMappingCache(ctx context.Context) error {
	mappings, err := s.ListMappings(ctx, "*")
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.mappingCache = make(map[string]*model.ProductMapping, len(mappings))
	for i := range mappings {
		s.mappingCache[mappingCacheKey(nameKey(mappings[i].OriginalName), mappings[i].VendorID)] = &mappings[i]
	}
	s.cacheExpiry = s.now().Add(mappingCacheTTL)
	return nil
}

func (s *SQLiteStorage) getCachedMapping(key string) *model.ProductMapping {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	if s.now().After(s.cacheExpiry) {
		return nil
	}
	m, ok := s.mappingCache[key]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (s *SQLiteStorage) cacheMapping(key string, mapping *model.ProductMapping) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if len(s.mappingCache) == 0 || s.now().After(s.cacheExpiry) {
		s.mappingCache = make(map[string]*model.ProductMapping)
		s.cacheExpiry = s.now().Add(mappingCacheTTL)
	}
	cp := *mapping
	s.mappingCache[key] = &cp
}

func (s *SQLiteStorage) invalidateMapping(key string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	delete(s.mappingCache, key)
}

func scanMapping(row scanner) (*model.ProductMapping, error) {
	var m model.ProductMapping
	var source string
	if err := row.Scan(&m.ID, &m.OriginalName, &m.VendorID, &m.ProductID, &m.ProductName, &m.Confidence,
		&source, &m.UseCount, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Source = model.MappingSource(source)
	return &m, nil
}

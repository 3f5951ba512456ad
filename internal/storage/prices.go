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

// GetCurrentCost returns the product's cost, currency and version.
func (s *SQLiteStorage) GetCurrentCost(ctx context.Context, productID string) (*model.CostSnapshot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return nil, err
	}

	var snap model.CostSnapshot
	var cost sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, cost, currency, version FROM products WHERE id = ?
	`, productID).Scan(&snap.ProductID, &snap.ProductName, &cost, &snap.Currency, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current cost: %w", err)
	}
	snap.Cost = floatPtr(cost)
	return &snap, nil
}

// UpdateCost writes a new cost if the product is still at the expected version.
func (s *SQLiteStorage) UpdateCost(ctx context.Context, update model.CostUpdate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(update.ProductID, "productID"); err != nil {
		return err
	}
	if update.Cost <= 0 {
		return fmt.Errorf("%w: cost must be positive", ErrInvalidPrice)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET cost = ?, currency = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, update.Cost, update.Currency, s.now(), update.ProductID, update.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update cost: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`, update.ProductID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check product existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("product %s: %w", update.ProductID, common.ErrNotFound)
		}
		return fmt.Errorf("product %s: %w", update.ProductID, common.ErrVersionConflict)
	})
}

// AppendHistory records an accepted cost change.
func (s *SQLiteStorage) AppendHistory(ctx context.Context, entry *model.PriceHistoryEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateHistoryEntry(entry); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_history (product_id, old_cost, new_cost, currency, change_percentage,
			invoice_id, invoice_number, vendor_id, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ProductID, nullFloat(entry.OldCost), entry.NewCost, entry.Currency, nullFloat(entry.ChangePercentage),
		nullString(entry.InvoiceID), nullString(entry.InvoiceNumber), nullString(entry.VendorID),
		nullString(entry.Reason), nullString(entry.Actor), entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get history id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetHistory returns the product's history over the last sinceDays days,
// oldest first. A non-positive sinceDays returns the full history.
func (s *SQLiteStorage) GetHistory(ctx context.Context, productID string, sinceDays int) ([]model.PriceHistoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return nil, err
	}

	since := time.Time{}
	if sinceDays > 0 {
		since = s.now().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_cost, new_cost, currency, change_percentage,
			COALESCE(invoice_id, ''), COALESCE(invoice_number, ''), COALESCE(vendor_id, ''),
			COALESCE(reason, ''), COALESCE(actor, ''), created_at
		FROM price_history
		WHERE product_id = ? AND created_at >= ?
		ORDER BY created_at, id
	`, productID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		var oldCost, change sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.ProductID, &oldCost, &e.NewCost, &e.Currency, &change,
			&e.InvoiceID, &e.InvoiceNumber, &e.VendorID, &e.Reason, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		e.OldCost = floatPtr(oldCost)
		e.ChangePercentage = floatPtr(change)
		history = append(history, e)
	}
	return history, rows.Err()
}

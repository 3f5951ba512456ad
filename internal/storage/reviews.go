package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

const reviewColumns = `id, COALESCE(invoice_id, ''), COALESCE(invoice_item_id, ''), vendor_id, original_name,
	priority, status, context, COALESCE(reviewer, ''), decision, created_at, resolved_at`

// InsertReview adds a pending item to the review queue.
func (s *SQLiteStorage) InsertReview(ctx context.Context, item *model.ReviewQueueItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReview(item); err != nil {
		return err
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Status = model.ReviewPending
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}

	contextJSON, err := json.Marshal(item.Context)
	if err != nil {
		return fmt.Errorf("failed to encode review context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_queue (id, invoice_id, invoice_item_id, vendor_id, original_name, priority, status, context, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM review_queue))
	`, item.ID, nullString(item.InvoiceID), nullString(item.InvoiceItemID), item.VendorID, item.OriginalName,
		item.Priority, string(item.Status), string(contextJSON), item.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert review item: %w", err)
	}
	return nil
}

// GetReview returns a review item by ID.
func (s *SQLiteStorage) GetReview(ctx context.Context, id string) (*model.ReviewQueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	item, err := scanReview(s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM review_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return item, nil
}

// ListPendingReviews returns pending items, highest priority and oldest first.
func (s *SQLiteStorage) ListPendingReviews(ctx context.Context, priority *int) ([]model.ReviewQueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + reviewColumns + ` FROM review_queue WHERE status = 'pending'`
	var args []any
	if priority != nil {
		query += ` AND priority = ?`
		args = append(args, *priority)
	}
	query += ` ORDER BY priority, created_at, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ReviewQueueItem
	for rows.Next() {
		item, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateReviewStatus resolves a pending item. Resolved items cannot change.
func (s *SQLiteStorage) UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, reviewer string, decision model.ReviewDecision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.IsTerminal() {
		return fmt.Errorf("%w: cannot move review to %s", ErrInvalidStatus, status)
	}

	decisionJSON, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE review_queue
			SET status = ?, reviewer = ?, decision = ?, resolved_at = ?
			WHERE id = ? AND status = 'pending'
		`, string(status), nullString(reviewer), string(decisionJSON), s.now(), id)
		if err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}

		var current string
		err = tx.QueryRowContext(ctx, `SELECT status FROM review_queue WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("review %s: %w", id, common.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read review status: %w", err)
		}
		return fmt.Errorf("review %s is %s: %w", id, current, common.ErrAlreadyResolved)
	})
}

// LinkInvoiceItem records the product an invoice line resolved to.
func (s *SQLiteStorage) LinkInvoiceItem(ctx context.Context, invoiceItemID, productID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(invoiceItemID, "invoiceItemID"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_item_links (invoice_item_id, product_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(invoice_item_id) DO UPDATE SET
			product_id = excluded.product_id,
			updated_at = excluded.updated_at
	`, invoiceItemID, productID, s.now())
	if err != nil {
		return fmt.Errorf("failed to link invoice item: %w", err)
	}
	return nil
}

// GetInvoiceItemProduct returns the product linked to an invoice line.
func (s *SQLiteStorage) GetInvoiceItemProduct(ctx context.Context, invoiceItemID string) (string, error) {
	var productID string
	err := s.db.QueryRowContext(ctx, `SELECT product_id FROM invoice_item_links WHERE invoice_item_id = ?`, invoiceItemID).Scan(&productID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("invoice item %s: %w", invoiceItemID, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get invoice item link: %w", err)
	}
	return productID, nil
}

func scanReview(row scanner) (*model.ReviewQueueItem, error) {
	var (
		item         model.ReviewQueueItem
		status       string
		contextJSON  string
		decisionJSON sql.NullString
		resolvedAt   sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.InvoiceID, &item.InvoiceItemID, &item.VendorID, &item.OriginalName,
		&item.Priority, &status, &contextJSON, &item.Reviewer, &decisionJSON, &item.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}

	item.Status = model.ReviewStatus(status)
	item.ResolvedAt = timePtr(resolvedAt)
	if err := json.Unmarshal([]byte(contextJSON), &item.Context); err != nil {
		return nil, fmt.Errorf("failed to decode review context: %w", err)
	}
	if decisionJSON.Valid && decisionJSON.String != "" {
		var d model.ReviewDecision
		if err := json.Unmarshal([]byte(decisionJSON.String), &d); err != nil {
			return nil, fmt.Errorf("failed to decode decision: %w", err)
		}
		item.Decision = &d
	}
	return &item, nil
}

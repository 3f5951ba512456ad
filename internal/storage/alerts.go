package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// SaveAlert stores a pending alert, assigning an ID when empty.
func (s *SQLiteStorage) SaveAlert(ctx context.Context, alert *model.Alert) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if alert == nil {
		return fmt.Errorf("%w: alert", ErrNilParameter)
	}
	if err := validateString(alert.ProductID, "productID"); err != nil {
		return err
	}

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}
	if alert.Status == "" {
		alert.Status = model.AlertPending
	}

	var data sql.NullString
	if len(alert.Data) > 0 {
		raw, err := json.Marshal(alert.Data)
		if err != nil {
			return fmt.Errorf("failed to encode alert data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alerts (id, product_id, alert_type, message, priority, invoice_id, data, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.ProductID, string(alert.Type), alert.Message, string(alert.Priority),
		nullString(alert.InvoiceID), data, string(alert.Status), alert.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts with the given status, newest first. An empty
// status lists everything; limit <= 0 means no limit.
func (s *SQLiteStorage) ListAlerts(ctx context.Context, status model.AlertStatus, limit int) ([]model.Alert, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, product_id, alert_type, message, priority, COALESCE(invoice_id, ''), data, status,
		COALESCE(resolved_by, ''), created_at, resolved_at FROM price_alerts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []model.Alert
	for rows.Next() {
		var (
			a                               model.Alert
			alertType, priority, alertState string
			data                            sql.NullString
			resolvedAt                      sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.ProductID, &alertType, &a.Message, &priority, &a.InvoiceID, &data,
			&alertState, &a.ResolvedBy, &a.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Type = model.AlertType(alertType)
		a.Priority = model.AlertPriority(priority)
		a.Status = model.AlertStatus(alertState)
		a.ResolvedAt = timePtr(resolvedAt)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &a.Data); err != nil {
				return nil, fmt.Errorf("failed to decode alert data: %w", err)
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ResolveAlert marks a pending alert as handled.
func (s *SQLiteStorage) ResolveAlert(ctx context.Context, id, resolvedBy string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE price_alerts SET status = 'resolved', resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'
	`, nullString(resolvedBy), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return requireAffected(res, "pending alert", id)
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial catalog and mapping schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS products (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					name_key TEXT NOT NULL,
					brand TEXT,
					category TEXT,
					barcode TEXT UNIQUE,
					cost REAL,
					currency TEXT NOT NULL DEFAULT 'USD',
					size TEXT,
					unit TEXT,
					embedding TEXT,
					version INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_products_name_key ON products(name_key)`,
				`CREATE INDEX idx_products_brand ON products(brand)`,

				`CREATE TABLE IF NOT EXISTS product_mappings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					original_name TEXT NOT NULL,
					lookup_key TEXT NOT NULL,
					vendor_id TEXT NOT NULL DEFAULT '',
					product_id TEXT NOT NULL,
					confidence REAL NOT NULL,
					source TEXT NOT NULL,
					use_count INTEGER NOT NULL DEFAULT 0,
					created_by TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					UNIQUE (lookup_key, vendor_id),
					FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_product_mappings_product ON product_mappings(product_id)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add price history",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS price_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					product_id TEXT NOT NULL,
					old_cost REAL,
					new_cost REAL NOT NULL,
					currency TEXT NOT NULL,
					change_percentage REAL,
					invoice_id TEXT,
					invoice_number TEXT,
					vendor_id TEXT,
					reason TEXT,
					actor TEXT,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_price_history_product_date ON price_history(product_id, created_at)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Add review queue and invoice item links",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS review_queue (
					id TEXT PRIMARY KEY,
					invoice_id TEXT,
					invoice_item_id TEXT,
					vendor_id TEXT NOT NULL DEFAULT '',
					original_name TEXT NOT NULL,
					priority INTEGER NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					context TEXT NOT NULL,
					reviewer TEXT,
					decision TEXT,
					created_at DATETIME NOT NULL,
					resolved_at DATETIME,
					seq INTEGER NOT NULL
				)`,
				`CREATE INDEX idx_review_queue_pending ON review_queue(status, priority, created_at)`,

				`CREATE TABLE IF NOT EXISTS invoice_item_links (
					invoice_item_id TEXT PRIMARY KEY,
					product_id TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Add price alerts",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS price_alerts (
					id TEXT PRIMARY KEY,
					product_id TEXT NOT NULL,
					alert_type TEXT NOT NULL,
					message TEXT NOT NULL,
					priority TEXT NOT NULL,
					invoice_id TEXT,
					data TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					resolved_by TEXT,
					created_at DATETIME NOT NULL,
					resolved_at DATETIME
				)`,
				`CREATE INDEX idx_price_alerts_status ON price_alerts(status, created_at)`,
			)
		},
	},
}

// Migrate runs all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the current schema version of the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

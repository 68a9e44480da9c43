package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema kept portable: TEXT ids (uuid strings), TEXT dates (RFC 3339),
// TEXT amounts (exact decimal strings). Both drivers run the same DDL.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS upload_jobs (
		id                TEXT PRIMARY KEY,
		status            TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		stored_key        TEXT NOT NULL,
		content_type      TEXT NOT NULL,
		receipt_id        TEXT,
		error_message     TEXT,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_upload_jobs_status ON upload_jobs (status)`,

	`CREATE TABLE IF NOT EXISTS receipts (
		id               TEXT PRIMARY KEY,
		merchant         TEXT,
		purchase_date    TEXT,
		total_amount     TEXT,
		sales_tax_amount TEXT,
		confidence       REAL NOT NULL,
		needs_review     INTEGER NOT NULL,
		raw_text         TEXT NOT NULL,
		stored_key       TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_needs_review ON receipts (needs_review)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_purchase_date ON receipts (purchase_date)`,

	`CREATE TABLE IF NOT EXISTS merchants (
		name_key   TEXT PRIMARY KEY,
		display    TEXT NOT NULL,
		seen_count INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	)`,
}

// Migrate applies the schema idempotently. Statements are plain DDL, so
// rerunning on every boot is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

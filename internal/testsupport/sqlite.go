// Package testsupport holds helpers shared by repository and service tests.
package testsupport

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

// Schema mirrors the postgres migrations with sqlite types. Decimal columns
// are TEXT so values round-trip without float conversion.
var Schema = []string{
	`CREATE TABLE quotes (
		id INTEGER PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		client_id INTEGER NOT NULL,
		number TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		client_email TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		total_ht TEXT NOT NULL DEFAULT '0',
		total_vat TEXT NOT NULL DEFAULT '0',
		total_ttc TEXT NOT NULL DEFAULT '0',
		deposit_percent TEXT NOT NULL DEFAULT '0',
		deposit_amount TEXT NOT NULL DEFAULT '0',
		deposit_status TEXT NOT NULL DEFAULT 'pending',
		deposit_paid_at DATETIME,
		deposit_method TEXT,
		signature_ref TEXT,
		signed_at DATETIME,
		payment_link_url TEXT,
		expires_at DATETIME NOT NULL,
		sent_at DATETIME,
		completed_at DATETIME,
		canceled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_quotes_owner_number ON quotes (owner_id, number)`,
	`CREATE TABLE quote_lines (
		id INTEGER PRIMARY KEY,
		quote_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		description TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price_ht TEXT NOT NULL,
		vat_rate TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_quote_lines_position ON quote_lines (quote_id, position)`,
	`CREATE TABLE signature_artifacts (
		ref TEXT PRIMARY KEY,
		quote_id INTEGER NOT NULL,
		owner_id INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		content BLOB NOT NULL,
		digest TEXT NOT NULL,
		signer_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_records (
		id INTEGER PRIMARY KEY,
		quote_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		provider TEXT NOT NULL,
		processor_reference TEXT NOT NULL,
		processor_payment_ref TEXT,
		checkout_url TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL,
		expires_at DATETIME,
		failure_reason TEXT,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		processing_error TEXT
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events (provider, provider_event_id)`,
}

// OpenDB returns an isolated in-memory database with the schema applied.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Count returns the number of rows in table matching where.
func Count(t *testing.T, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()

	query := "SELECT COUNT(1) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

// Package testutil opens in-memory databases carrying the paysync schema.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		source TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		provider_order_ref TEXT NOT NULL DEFAULT '',
		provider_payment_ref TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		apply_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_source_event ON payment_events (source, event_id)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number TEXT NOT NULL,
		provider_order_ref TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		provider_payment_ref TEXT,
		provider_signature TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_outbox (
		id INTEGER PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// OpenDB returns a fresh in-memory database with every paysync table created.
// The pool is capped at one connection so concurrent tests serialize on it.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
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

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// SeedOrder inserts a pending order and returns its row id.
func SeedOrder(t testing.TB, db *gorm.DB, orderNumber, providerOrderRef string) int64 {
	t.Helper()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO orders (order_number, provider_order_ref, status, payment_status, created_at, updated_at)
		 VALUES (?, ?, 'pending', 'pending', ?, ?)`,
		orderNumber, providerOrderRef, now, now,
	).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	var id int64
	if err := db.Raw(`SELECT id FROM orders WHERE provider_order_ref = ?`, providerOrderRef).Scan(&id).Error; err != nil {
		t.Fatalf("load order id: %v", err)
	}
	return id
}

// SetOrderStatus forces an order into a state for tests that start mid-lifecycle.
func SetOrderStatus(t testing.TB, db *gorm.DB, providerOrderRef, status, paymentStatus string) {
	t.Helper()

	if err := db.Exec(
		`UPDATE orders SET status = ?, payment_status = ? WHERE provider_order_ref = ?`,
		status, paymentStatus, providerOrderRef,
	).Error; err != nil {
		t.Fatalf("set order status: %v", err)
	}
}

func CountRows(t testing.TB, db *gorm.DB, table string) int64 {
	t.Helper()

	var count int64
	if err := db.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

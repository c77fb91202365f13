// Package store provides the aggregate and outbox stores. The Postgres
// implementations commit aggregate mutations and their outbox records in
// one transaction, and enforce optimistic concurrency with an explicit
// version column checked in the UPDATE's WHERE clause.
package store

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres establishes a pooled connection.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// EnsureSchema creates the tables if they do not exist. The outbox table is
// co-located with the aggregates so one local transaction covers both.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			customer_id TEXT NOT NULL,
			total_amount NUMERIC(19,4) NOT NULL,
			currency CHAR(3) NOT NULL,
			status TEXT NOT NULL,
			saga_status TEXT NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			reservation_id TEXT NOT NULL DEFAULT '',
			payment_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_saga_status ON orders (saga_status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price NUMERIC(19,4) NOT NULL,
			currency CHAR(3) NOT NULL,
			line_total NUMERIC(19,4) NOT NULL,
			position INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS procurements (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			quantity_amount NUMERIC(19,4) NOT NULL,
			quantity_unit TEXT NOT NULL,
			budget_amount NUMERIC(19,4) NOT NULL,
			budget_currency CHAR(3) NOT NULL,
			deadline TIMESTAMPTZ NOT NULL,
			buyer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			awarded_bid_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_procurements_buyer ON procurements (buyer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_procurements_status ON procurements (status, deadline)`,
		`CREATE TABLE IF NOT EXISTS bids (
			id UUID PRIMARY KEY,
			procurement_id UUID NOT NULL REFERENCES procurements(id) ON DELETE CASCADE,
			vendor_id TEXT NOT NULL,
			amount NUMERIC(19,4) NOT NULL,
			currency CHAR(3) NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			position INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_records (
			id UUID PRIMARY KEY,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			retry_count INT NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unprocessed ON outbox_records (created_at) WHERE NOT processed`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

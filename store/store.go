// Package store is the data access layer for the monitoring engine.
//
// It receives an already-opened *sql.DB (see dbopen) and owns the schema:
// tenants, their monitored sites, content snapshots, detected changes,
// the per-check audit trail, and the per-site check leases.
package store

import "database/sql"

// Store wraps the monitoring database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Package database defines the storage contracts used by the service and the
// tenant-aware query scoping applied to every entity table.
package database

import (
	"context"
	"database/sql"
)

// Querier executes statements. Both connections and transactions satisfy it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx defines the interface for database transactions
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Interface defines the database operations modules depend on,
// allowing for easy mocking and testing.
type Interface interface {
	Querier

	Begin(ctx context.Context) (Tx, error)

	// Health and diagnostics
	Health(ctx context.Context) error
	Stats() (map[string]any, error)

	// DB exposes the pool for tooling such as migrations.
	DB() *sql.DB
	DatabaseType() string
	Close() error
}

// WithTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func WithTx(ctx context.Context, db Interface, fn func(tx Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

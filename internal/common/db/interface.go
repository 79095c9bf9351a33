package db

import "context"

// Database defines the unified interface for relational database access.
// This abstraction allows swapping the concrete driver without changing
// repository code.
type Database interface {
	Querier

	// Transaction executes fn inside a transaction, rolling back on error
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)

	// Ping verifies the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the database connection pool
	Close() error
}

// Querier abstracts query operations shared by database and transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Transaction represents an in-progress database transaction.
type Transaction interface {
	Querier

	Commit() error
	Rollback() error
}

// Rows is the result of a query returning multiple rows.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of a query returning at most one row.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

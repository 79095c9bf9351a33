package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// GetQuerier returns transaction if provided, otherwise uses the database.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// IsNoRows checks if the error is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsDuplicateKey reports whether err is a MySQL duplicate key violation.
func IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// WithTx runs fn in a transaction unless tx is already provided by the caller.
func WithTx(ctx context.Context, database Database, tx Transaction, fn func(tx Transaction) error) error {
	if tx != nil {
		return fn(tx)
	}
	return database.Transaction(ctx, fn)
}

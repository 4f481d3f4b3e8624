// Package tx carries a database/sql transaction through context so a store
// write can join a transaction its caller owns. The scan outbox append uses
// this to land in the same transaction as whatever write triggered it;
// without a transaction in context, writes run directly against the pool.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// Executor is the execution surface shared by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WithTx stores a transaction in context for downstream store calls.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts the context's transaction if one is present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// ExecutorFrom returns the context's transaction when present, otherwise the
// fallback. Stores call this at every write so a single implementation
// serves both transactional and standalone callers.
func ExecutorFrom(ctx context.Context, fallback Executor) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return fallback
}

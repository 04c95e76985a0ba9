package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const txKey contextKey = "db_tx"

// Querier is the subset of pgx shared by *pgxpool.Pool, *pgxpool.Conn and
// pgx.Tx. Repositories run all their SQL through it so the same code works
// against the pool, a tenant-pinned connection, or an open transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// QuerierFromContext resolves the executor for the current request: an open
// transaction first, then the tenant-pinned connection, then the fallback
// pool.
func QuerierFromContext(ctx context.Context, fallback *pgxpool.Pool) Querier {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	if conn := ConnFromContext(ctx); conn != nil {
		return conn
	}
	return fallback
}

// TxFromContext returns the transaction stored in ctx, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// WithTx runs fn inside a transaction on the request's tenant connection
// (or the pool when no request connection is pinned). The transaction is
// stored in the context passed to fn, so repository calls made through
// QuerierFromContext join it automatically. Nested calls reuse the
// outermost transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	var begin interface {
		Begin(ctx context.Context) (pgx.Tx, error)
	}
	if conn := ConnFromContext(ctx); conn != nil {
		begin = conn
	} else if pool != nil {
		begin = pool
	} else {
		// No database attached; run fn without transactional guarantees.
		return fn(ctx)
	}

	tx, err := begin.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Context keys are unexported struct types so no other package can collide
// with them; attachment goes through WithConn / WithTx.
type (
	connKey struct{}
	txKey   struct{}
)

// WithConn pins a dedicated pool connection onto the context. Repositories
// prefer it over the shared pool, which matters for statements that rely on
// session state (advisory locks, SET LOCAL).
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// ConnFromContext returns the pinned connection, or nil when none was set.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(connKey{}).(*pgxpool.Conn)
	return conn
}

// TxFromContext returns the transaction started by WithTx, or nil.
// Repositories resolve their queryable through this first, so every write
// inside a WithTx callback lands in the same transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// WithTx runs fn inside a transaction attached to fn's context. A nil
// error commits; any error (or panic unwinding) rolls back.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

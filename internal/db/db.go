package db

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // Register postgres driver for migrations
)

// Executor is the subset of pgx methods the repositories use. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so every repository method can run
// against the pool directly or inside an enclosing transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is an open transaction as seen by the reconciliation engine.
type Tx interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Pool abstracts transaction creation so the engine can be tested without a
// live database.
type Pool interface {
	Executor
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (Tx, error)
}

// PgxPool adapts *pgxpool.Pool to Pool; the pgx BeginTx signature returns the
// concrete pgx.Tx type, which satisfies Tx.
type PgxPool struct {
	*pgxpool.Pool
}

func (p PgxPool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (Tx, error) {
	return p.Pool.BeginTx(ctx, txOptions)
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// openDB opens a database connection without pinging.
func openDB(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

// Package db wires the shared pgx connection pool. Every repository in
// this gateway (catalog, ledger, responsestate, attestation, auth, orgs)
// uses the *pgxpool.Pool constructed here, either directly or through
// the Querier interface, rather than opening its own connections, so the
// pool size and lifecycle are configured once.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teeinfer/gateway/internal/config"
)

// NewPool constructs the shared pool; registered as an fx provider. The
// OnStop hook that closes it lives in cmd/gatewayd, alongside the rest of
// the process lifecycle wiring.
func NewPool(cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.Database.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error returned by fn or by the commit itself. Used
// by the ledger to make its insert+increment pair atomic.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// repository methods run either standalone or inside a caller-managed
// transaction (used by the ledger's single insert+increment transaction).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sponsorhub/internal/errs"
	"sponsorhub/internal/ports"
)

// DB is the pgx-backed ports.TxStore. Outside InTx every call runs on the
// pool; inside InTx all repository calls share one transaction.
type DB struct {
	store
	Pool *pgxpool.Pool
}

func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{store: store{q: pool}, Pool: pool}, nil
}

func (db *DB) Close() { db.Pool.Close() }

// InTx runs fn against a transaction-bound store; commit iff fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, s ports.Store) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	err = fn(ctx, &store{q: tx})
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type store struct {
	q querier
}

// mapErr translates unique-violation into the errs taxonomy so services can
// errors.As on it.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errs.NewAlreadyExistsError(pgErr.Message)
	}
	return err
}

var _ ports.TxStore = (*DB)(nil)
var _ ports.Store = (*store)(nil)

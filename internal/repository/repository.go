// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository implements the persistence layer on top of sqlx.
// Queries are written with ? placeholders and rebound for the active driver.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("unique constraint violated")
	// ErrBusy marks lock contention and serialization failures.
	ErrBusy = errors.New("database busy")
)

// DefaultRetryDelay is the pause before the single retry of a busy read.
const DefaultRetryDelay = 50 * time.Millisecond

type Repository struct {
	db         *sqlx.DB
	q          sqlx.ExtContext
	retryDelay time.Duration
}

func New(db *sqlx.DB) *Repository {
	return &Repository{db: db, q: db, retryDelay: DefaultRetryDelay}
}

// DB returns the underlying connection pool.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// WithRetryDelay returns a copy of the repository using the given delay
// between a busy read and its retry.
func (r *Repository) WithRetryDelay(d time.Duration) *Repository {
	cp := *r
	cp.retryDelay = d
	return &cp
}

// InTx runs fn with a repository bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	txRepo := &Repository{db: r.db, q: tx, retryDelay: r.retryDelay}
	if err := fn(txRepo); err != nil {
		_ = tx.Rollback()
		return err
	}

	return classify(tx.Commit())
}

// read runs fn and retries it exactly once when the failure is transient.
// Writes never go through here.
func (r *Repository) read(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(r.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := classify(fn(ctx))
		if errors.Is(err, ErrBusy) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *Repository) get(ctx context.Context, dest any, query string, args ...any) error {
	query = r.q.Rebind(query)
	return r.read(ctx, func(ctx context.Context) error {
		return sqlx.GetContext(ctx, r.q, dest, query, args...)
	})
}

func (r *Repository) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	query = r.q.Rebind(query)
	return r.read(ctx, func(ctx context.Context) error {
		return sqlx.SelectContext(ctx, r.q, dest, query, args...)
	})
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...)
	return res, classify(err)
}

// execAffected runs a write and reports how many rows it touched.
func (r *Repository) execAffected(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insert runs an INSERT ... RETURNING id statement and returns the new id.
func (r *Repository) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, r.q, &id, r.q.Rebind(query), args...)
	return id, classify(err)
}

// classify maps driver errors onto ErrBusy and ErrConflict while keeping
// the original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch {
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ErrBusy, err)
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return fmt.Errorf("%w: %w", ErrBusy, err)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}

	return err
}

// IsNotFound reports whether err means the queried row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

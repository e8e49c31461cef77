// Package postgres implements store.Store on PostgreSQL with sqlx and lib/pq.
// Job/Match transitions take row locks (SELECT ... FOR UPDATE) and write
// with status-conditional updates; partial unique indexes back the
// one-live-match and one-active-suspension invariants.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// PostgreSQL error codes the store translates.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*txn)(nil)
)

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	reader
	db          *sqlx.DB
	logger      *slog.Logger
	lockTimeout time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock. A
// timed-out wait surfaces as store.ErrLockConflict.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates a Store on top of an open sqlx handle.
func New(db *sqlx.DB, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		reader: reader{q: db},
		db:     db,
		logger: logger.With("component", "postgres_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a read-committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			s.rollback(sqlTx)
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(&txn{reader: reader{q: sqlTx}, tx: sqlTx}); err != nil {
		s.rollback(sqlTx)
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

func (s *Store) rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Error("Failed to roll back transaction", slog.Any("error", err))
	}
}

// txn is the store.Tx bound to one *sqlx.Tx.
type txn struct {
	reader
	tx *sqlx.Tx
}

// reader runs point reads against either the pool or a transaction.
type reader struct {
	q sqlx.ExtContext
}

// mapError converts driver errors into the store sentinels, keeping the
// original text.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pqErr.Constraint)
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", store.ErrLockConflict, pqErr.Message)
		}
	}
	return err
}

// affected turns a zero-row conditional update into ErrStale.
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrStale
	}
	return nil
}

func flipped(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

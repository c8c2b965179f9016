package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crowd-labeling-api/internal/database"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// pgTransactor opens PostgreSQL transactions on the shared pool
type pgTransactor struct {
	db *database.DB
}

func (t *pgTransactor) WithTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	tx, err := t.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	repos := newRepositories(tx)
	repos.Tx = Nested(repos)

	if err := fn(repos); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// withCopyTx runs fn on a transaction, reusing q when it already is one
func withCopyTx(ctx context.Context, q querier, fn func(tx *sql.Tx) error) error {
	if tx, ok := q.(*sql.Tx); ok {
		return fn(tx)
	}

	var db *sql.DB
	switch v := q.(type) {
	case *database.DB:
		db = v.DB
	case *sql.DB:
		db = v
	default:
		return fmt.Errorf("unsupported querier %T", q)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// mapError converts driver errors into repository errors
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

// Package postgres persists governance records in PostgreSQL. Evidence,
// breakdowns and decisions are insert-only, and the schema enforces it with
// triggers. Requests and exceptions only change status, through
// compare-and-swap updates.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/risk"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintOpenRequest      = "cab_requests_open_pair_idx"
	constraintBreakdownVersion = "risk_breakdowns_evidence_version_key"
	constraintExceptionRequest = "cab_exceptions_request_key"
)

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store implements evidence.Repository, risk.Repository and cab.Repository.
type Store struct {
	db DB
}

var (
	_ evidence.Repository = (*Store)(nil)
	_ risk.Repository     = (*Store)(nil)
	_ cab.Repository      = (*Store)(nil)
)

func New(db DB) *Store {
	return &Store{db: db}
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error, constraint string) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgForeignKeyViolation
}

// orEmpty keeps NOT NULL array columns from receiving NULL.
func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// Package storage is the Postgres persistence layer. Repositories speak raw
// SQL over pgx; driver failures are translated into the scherr taxonomy at
// this boundary so the core never inspects pgconn errors. The assignments
// table carries an exclusion constraint over (provider_id, during) which
// makes two overlapping bookings for one provider impossible to commit even
// across service replicas.
package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fieldline/scheduling-service/internal/booking"
	"github.com/fieldline/scheduling-service/internal/scherr"
	"github.com/fieldline/scheduling-service/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx runs fn in one transaction. Any error (including context
// cancellation) rolls the whole unit back; serialization and exclusion
// failures surface as ConflictError so the caller can pick an alternate slot
// instead of retrying blindly.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translateCommit(err)
	}
	return nil
}

// txRepo implements booking.Tx over one open pgx transaction.
type txRepo struct {
	tx pgx.Tx
}

var _ booking.Tx = (*txRepo)(nil)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeSerializationFail  = "40001"
	codeDeadlockDetected   = "40P01"
)

func isConflictCode(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeExclusionViolation, codeSerializationFail, codeDeadlockDetected:
		return true
	}
	return false
}

// translateWrite maps insert/update failures on booking rows.
func translateWrite(err error) error {
	if err == nil {
		return nil
	}
	if isConflictCode(err) {
		return scherr.Conflict("interval already taken for this provider")
	}
	return err
}

func translateCommit(err error) error {
	if isConflictCode(err) {
		return scherr.Conflict("booking lost a concurrent race, pick another slot")
	}
	return err
}

// notFound maps pgx.ErrNoRows on lookups of a named entity.
func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return scherr.NotFound(kind, id)
	}
	return err
}

// notFoundRow reports a zero-row update the same way.
func notFoundRow(kind, id string) error {
	return scherr.NotFound(kind, id)
}

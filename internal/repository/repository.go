package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/teacher-ratings/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrConstraint indicates a CHECK/NOT NULL/length constraint rejected the write.
	ErrConstraint = errors.New("repository: constraint violation")
	// ErrReference indicates a foreign key points at a missing row.
	ErrReference = errors.New("repository: missing reference")
)

// ConstraintError carries the name of the violated constraint alongside one of
// the sentinel errors above.
type ConstraintError struct {
	Kind       error
	Constraint string
	Detail     string
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v (%s): %s", e.Kind, e.Constraint, e.Detail)
}

func (e *ConstraintError) Unwrap() error { return e.Kind }

// ConstraintName returns the violated constraint name, if err carries one.
func ConstraintName(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Teachers *TeachersRepository
	Ratings  *RatingsRepository
	Users    *UsersRepository

	pool *pgxpool.Pool
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	r := withDB(pool)
	r.pool = pool
	return r
}

func withDB(db DBTX) *Repository {
	return &Repository{
		Teachers: &TeachersRepository{db: db},
		Ratings:  &RatingsRepository{db: db},
		Users:    &UsersRepository{db: db},
	}
}

// InTx runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calling
// InTx on a transaction-bound Repository reuses the open transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(withDB(tx))
	})
}

// mapError converts driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &ConstraintError{Kind: ErrConflict, Constraint: pgErr.ConstraintName, Detail: pgErr.Message}
		case "23503":
			return &ConstraintError{Kind: ErrReference, Constraint: pgErr.ConstraintName, Detail: pgErr.Message}
		case "23514", "23502", "22001":
			return &ConstraintError{Kind: ErrConstraint, Constraint: pgErr.ConstraintName, Detail: pgErr.Message}
		}
	}
	return err
}

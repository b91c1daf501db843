package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist or belongs to another tenant.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidReference is returned when a referenced row is missing from the owning tenant.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrOwnerRequired is returned when an unscoped staff principal creates a row without naming its account.
	ErrOwnerRequired = errors.New("owning account is required")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// PostgreSQL SQLSTATE codes translated by Classify.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Classify maps constraint violations onto ErrDuplicate and
// ErrInvalidReference, keeping the driver error in the chain. Other errors are
// returned unchanged.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %s: %w", ErrDuplicate, pgErr.ConstraintName, err)
	case foreignKeyViolation:
		return fmt.Errorf("%w: %s: %w", ErrInvalidReference, pgErr.ConstraintName, err)
	default:
		return err
	}
}

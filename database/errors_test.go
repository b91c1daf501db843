package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "accounts_subdomain_key"}
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "locations_practice_id_fkey"}
	other := &pgconn.PgError{Code: "40001"}

	err := Classify(fmt.Errorf("exec: %w", unique))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.ErrorAs(t, err, new(*pgconn.PgError))
	assert.Contains(t, err.Error(), "accounts_subdomain_key")

	assert.ErrorIs(t, Classify(fk), ErrInvalidReference)
	assert.Same(t, error(other), Classify(other))

	plain := errors.New("connection reset")
	assert.Same(t, plain, Classify(plain))
	assert.NoError(t, Classify(nil))
}

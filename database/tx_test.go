package database_test

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/database/postgresql"
)

func TestWithTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	conn := postgresql.Wrap(db, nil)
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE practices SET name = \$1 WHERE id = \$2`).
			WithArgs("South", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := database.WithTx(ctx, conn, func(tx database.Tx) error {
			n, err := database.Exec(ctx, tx, database.Builder().
				Update("practices").Set("name", "South").Where(squirrel.Eq{"id": 1}))
			assert.Equal(t, int64(1), n)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := database.WithTx(ctx, conn, func(database.Tx) error { return boom })
		require.ErrorIs(t, err, boom)
	})

	t.Run("rollback on panic", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = database.WithTx(ctx, conn, func(database.Tx) error { panic("boom") })
		})
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

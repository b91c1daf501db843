// Package migrations embeds the schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/nephrolytics/practice-api/logger"
)

// TableName records applied versions.
const TableName = "schema_migrations"

const dir = "sql"

//go:embed sql/*.sql
var files embed.FS

// ErrFailedToApplyMigrations wraps every migration failure.
var ErrFailedToApplyMigrations = errors.New("failed to apply migrations")

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB, log logger.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := configure(log); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// Version reports the current schema version.
func Version(ctx context.Context, db *sql.DB, log logger.Logger) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := configure(log); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

func configure(log logger.Logger) error {
	goose.SetBaseFS(files)
	goose.SetLogger(&gooseLogger{log: log})
	goose.SetTableName(TableName)
	return goose.SetDialect(string(goose.DialectPostgres))
}

// gooseLogger routes goose's Printf-style output through the service logger.
type gooseLogger struct {
	log logger.Logger
}

func (g *gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error().Str("component", "migrations").Msg(fmt.Sprintf(format, v...))
}

func (g *gooseLogger) Printf(format string, v ...any) {
	g.log.Info().Str("component", "migrations").Msg(fmt.Sprintf(format, v...))
}

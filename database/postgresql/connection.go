// Package postgresql implements database.Interface on top of the pgx stdlib driver.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/metric"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/logger"
)

const (
	connectTimeout = 10 * time.Second
	healthTimeout  = 5 * time.Second
)

// Connection implements database.Interface for PostgreSQL
type Connection struct {
	db      *sql.DB
	logger  logger.Logger
	metrics *database.QueryMetrics
	pool    metric.Registration
}

var _ database.Interface = (*Connection)(nil)

var (
	openPostgresDB = func(cfg *pgx.ConnConfig) *sql.DB {
		return stdlib.OpenDB(*cfg)
	}
	pingPostgresDB = func(ctx context.Context, db *sql.DB) error {
		return db.PingContext(ctx)
	}
)

// quoteDSN quotes a DSN value according to libpq rules: empty values become '',
// and values with characters outside [A-Za-z0-9._-] are escaped and single-quoted.
func quoteDSN(value string) string {
	if value == "" {
		return "''"
	}

	needsQuoting := strings.ContainsFunc(value, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') && r != '.' && r != '_' && r != '-'
	})
	if !needsQuoting {
		return value
	}

	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}

// DSN builds a libpq keyword/value connection string from cfg.
func DSN(cfg *config.DatabaseConfig) string {
	parts := []string{
		"host=" + quoteDSN(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + quoteDSN(cfg.Username),
		"password=" + quoteDSN(cfg.Password),
		"dbname=" + quoteDSN(cfg.Database),
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSN(cfg.SSLMode))
	}
	return strings.Join(parts, " ")
}

// NewConnection opens a pooled PostgreSQL connection and verifies it with a ping.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*Connection, error) {
	pgxConfig, err := pgx.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	db := openPostgresDB(pgxConfig)
	db.SetMaxOpenConns(cfg.Pool.Max.Connections)
	db.SetMaxIdleConns(cfg.Pool.Idle.Connections)
	db.SetConnMaxIdleTime(cfg.Pool.Idle.Time)
	db.SetConnMaxLifetime(cfg.Pool.Lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pingPostgresDB(pingCtx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close PostgreSQL database connection after ping failure")
		}
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL database")

	return Wrap(db, log), nil
}

// Wrap adapts an open *sql.DB. Tests use it with sqlmock.
func Wrap(db *sql.DB, log logger.Logger) *Connection {
	if log == nil {
		log = logger.Nop()
	}
	return &Connection{db: db, logger: log}
}

// Instrument records statement metrics and pool gauges on mp from now on.
func (c *Connection) Instrument(mp metric.MeterProvider) error {
	m, err := database.NewQueryMetrics(mp, config.PostgreSQL)
	if err != nil {
		return fmt.Errorf("failed to create query metrics: %w", err)
	}
	reg, err := database.RegisterPoolMetrics(mp, config.PostgreSQL, c.Stats)
	if err != nil {
		return fmt.Errorf("failed to register pool metrics: %w", err)
	}
	c.metrics = m
	c.pool = reg
	return nil
}

// Transaction wraps sql.Tx to implement database.Tx
type Transaction struct {
	tx      *sql.Tx
	metrics *database.QueryMetrics
}

// Query executes a query within the transaction
func (t *Transaction) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.tx.QueryContext(ctx, query, args...)
	t.metrics.Record(ctx, query, time.Since(start), err)
	return rows, err
}

// QueryRow executes a query that returns a single row within the transaction
func (t *Transaction) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.tx.QueryRowContext(ctx, query, args...)
	t.metrics.Record(ctx, query, time.Since(start), row.Err())
	return row
}

// Exec executes a query without returning rows within the transaction
func (t *Transaction) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, query, args...)
	t.metrics.Record(ctx, query, time.Since(start), err)
	return res, err
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

// Query executes a query that returns rows
func (c *Connection) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query, args...)
	c.metrics.Record(ctx, query, time.Since(start), err)
	return rows, err
}

// QueryRow executes a query that returns at most one row
func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := c.db.QueryRowContext(ctx, query, args...)
	c.metrics.Record(ctx, query, time.Since(start), row.Err())
	return row
}

// Exec executes a query without returning any rows
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := c.db.ExecContext(ctx, query, args...)
	c.metrics.Record(ctx, query, time.Since(start), err)
	return res, err
}

// Begin starts a transaction
func (c *Connection) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx, metrics: c.metrics}, nil
}

// Health checks database connectivity
func (c *Connection) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	return c.db.PingContext(ctx)
}

// Stats returns database connection statistics
func (c *Connection) Stats() (map[string]any, error) {
	stats := c.db.Stats()
	return map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
	}, nil
}

// DB returns the underlying pool.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// DatabaseType returns the database type
func (c *Connection) DatabaseType() string {
	return config.PostgreSQL
}

// Close closes the database connection
func (c *Connection) Close() error {
	c.logger.Info().Msg("Closing PostgreSQL database connection")
	if c.pool != nil {
		if err := c.pool.Unregister(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to unregister pool metrics")
		}
	}
	return c.db.Close()
}

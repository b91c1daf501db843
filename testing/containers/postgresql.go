//go:build integration

// Package containers starts disposable backing services for integration tests.
package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nephrolytics/practice-api/config"
)

// PostgreSQLContainerConfig holds configuration for the PostgreSQL test container.
type PostgreSQLContainerConfig struct {
	ImageTag       string
	Username       string
	Password       string
	Database       string
	StartupTimeout time.Duration
}

// DefaultPostgreSQLConfig returns the configuration used by the integration suite.
func DefaultPostgreSQLConfig() *PostgreSQLContainerConfig {
	return &PostgreSQLContainerConfig{
		ImageTag:       "17-alpine",
		Username:       "practice",
		Password:       "practice",
		Database:       "practice_test",
		StartupTimeout: 60 * time.Second,
	}
}

// PostgreSQLContainer wraps a running PostgreSQL testcontainer.
type PostgreSQLContainer struct {
	container *postgres.PostgresContainer
	cfg       *PostgreSQLContainerConfig
}

// StartPostgreSQL starts a PostgreSQL container and terminates it when the
// test finishes. The test is skipped when Docker is not available.
func StartPostgreSQL(ctx context.Context, t *testing.T, cfg *PostgreSQLContainerConfig) *PostgreSQLContainer {
	t.Helper()

	if cfg == nil {
		cfg = DefaultPostgreSQLConfig()
	}
	if !dockerReachable(ctx) {
		t.Skip("Docker is not available - skipping integration test")
	}

	pg, err := postgres.Run(ctx,
		fmt.Sprintf("postgres:%s", cfg.ImageTag),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2). // Postgres restarts after initial setup
				WithStartupTimeout(cfg.StartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}

	c := &PostgreSQLContainer{container: pg, cfg: cfg}
	t.Cleanup(func() {
		if err := c.container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate PostgreSQL container: %v", err)
		}
	})
	return c
}

// DatabaseConfig returns connection settings pointing at the container.
func (p *PostgreSQLContainer) DatabaseConfig(ctx context.Context) (*config.DatabaseConfig, error) {
	host, err := p.container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := p.container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, err
	}
	return &config.DatabaseConfig{
		Type:     config.PostgreSQL,
		Host:     host,
		Port:     port.Int(),
		Database: p.cfg.Database,
		Username: p.cfg.Username,
		Password: p.cfg.Password,
		SSLMode:  "disable",
		Pool: config.PoolConfig{
			Max:  config.PoolMaxConfig{Connections: 5},
			Idle: config.PoolIdleConfig{Connections: 2, Time: time.Minute},
		},
		Migrate: true,
	}, nil
}

// dockerReachable reports whether the testcontainers provider can reach a daemon.
func dockerReachable(ctx context.Context) bool {
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	_, err = provider.DaemonHost(ctx)
	return err == nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "practice-api", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 50, cfg.App.Rate.Limit)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.Timeout.Read)
	assert.Equal(t, "/api", cfg.Server.Path.Base)
	assert.Equal(t, PostgreSQL, cfg.Database.Type)
	assert.Equal(t, 25, cfg.Database.Pool.Max.Connections)
	assert.Equal(t, 5*time.Minute, cfg.Database.Pool.Idle.Time)
	assert.Equal(t, AuthModeJWT, cfg.Auth.Mode)
	assert.Equal(t, testSecret, cfg.Auth.JWT.Secret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWT.TTL)
	assert.Equal(t, "GoogleUsers", cfg.Tenancy.DefaultGroup)
	assert.True(t, cfg.Tenancy.StaffBypass)
	assert.Empty(t, cfg.Messaging.BrokerURL)
	assert.False(t, cfg.Observability.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Observability.MetricInterval)
	assert.NotNil(t, cfg.Koanf())
}

func TestLoadFileThenEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "config.yaml", `
app:
  name: from-file
server:
  port: 9000
database:
  host: db.internal
tenancy:
  defaultgroup: Clinicians
`)
	writeFile(t, dir, "config.staging.yaml", `
server:
  port: 9100
log:
  level: debug
`)

	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("APP_ENV", EnvStaging)
	t.Setenv("DATABASE_HOST", "db.env")
	t.Setenv("APP_RATE_LIMIT", "5")
	t.Setenv("OBSERVABILITY_SAMPLERATE", "0.25")

	cfg, err := LoadFrom(base)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.App.Name)
	assert.Equal(t, EnvStaging, cfg.App.Env)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "db.env", cfg.Database.Host)
	assert.Equal(t, 5, cfg.App.Rate.Limit)
	assert.Equal(t, "Clinicians", cfg.Tenancy.DefaultGroup)
	assert.InDelta(t, 0.25, cfg.Observability.SampleRate, 1e-9)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "short")

	_, err := LoadFrom("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	path := writeFile(t, t.TempDir(), "config.yaml", "app: [unterminated")

	_, err := LoadFrom(path)
	require.Error(t, err)
}

func TestEnvFile(t *testing.T) {
	assert.Equal(t, "config.production.yaml", envFile("config.yaml", EnvProduction))
	assert.Equal(t, "/etc/app/base.staging.yml", envFile("/etc/app/base.yml", EnvStaging))
	assert.Equal(t, "settings.development", envFile("settings", EnvDevelopment))
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is the optional base configuration file.
const DefaultFile = "config.yaml"

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. config.<env>.yaml
// 3. config.yaml
// 4. Default values (lowest priority)
func Load() (*Config, error) {
	return LoadFrom(DefaultFile)
}

// LoadFrom is Load with an explicit base file path. Missing files are skipped.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadOptionalFile(k, path); err != nil {
		return nil, err
	}

	// The environment may switch app.env, so peek at it before the env overlay.
	env := k.String("app.env")
	if v, ok := os.LookupEnv("APP_ENV"); ok {
		env = v
	}
	if env != "" {
		if err := loadOptionalFile(k, envFile(path, env)); err != nil {
			return nil, err
		}
	}

	if err := k.Load(envprovider.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// envFile derives config.<env>.yaml from the base file name.
func envFile(base, env string) string {
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i] + "." + env + base[i:]
	}
	return base + "." + env
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":       "practice-api",
		"app.version":    "v1.0.0",
		"app.env":        EnvDevelopment,
		"app.debug":      false,
		"app.rate.limit": 50,
		"app.rate.burst": 100,

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.timeout.read":     "15s",
		"server.timeout.write":    "30s",
		"server.timeout.idle":     "60s",
		"server.timeout.shutdown": "10s",
		"server.path.base":        "/api",
		"server.path.health":      "/health",
		"server.path.ready":       "/ready",
		"server.bodylimit":        "2M",

		"database.type":                  PostgreSQL,
		"database.host":                  "localhost",
		"database.port":                  5432,
		"database.database":              "practice",
		"database.username":              "practice",
		"database.sslmode":               "disable",
		"database.pool.max.connections":  25,
		"database.pool.idle.connections": 2,
		"database.pool.idle.time":        "5m",
		"database.pool.lifetime":         "30m",
		"database.migrate":               false,

		"log.level":  "info",
		"log.pretty": false,

		"auth.mode":       AuthModeJWT,
		"auth.jwt.issuer": "practice-api",
		"auth.jwt.ttl":    "24h",
		"auth.header":     "X-User-ID",

		"tenancy.defaultgroup": "GoogleUsers",
		"tenancy.staffbypass":  true,

		"messaging.exchange": "practice.events",

		"observability.enabled":        false,
		"observability.exporter":       ExporterStdout,
		"observability.samplerate":     1.0,
		"observability.metricinterval": "30s",
	}
}

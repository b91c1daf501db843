package config

import (
	"fmt"
	"slices"
	"strings"
)

// Database type constants
const (
	PostgreSQL = "postgresql"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Auth modes
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// Trace exporters
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

const minJWTSecretLength = 32

// Validate checks every configuration section and returns the first failure.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateDatabase(&cfg.Database); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateAuth(&cfg.Auth, cfg.App.Env); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := validateTenancy(&cfg.Tenancy); err != nil {
		return fmt.Errorf("tenancy config: %w", err)
	}

	if err := validateMessaging(&cfg.Messaging); err != nil {
		return fmt.Errorf("messaging config: %w", err)
	}

	if err := validateObservability(&cfg.Observability); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}

	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if cfg.Version == "" {
		return fmt.Errorf("app version is required")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return fmt.Errorf("invalid environment: %s (must be one of: %s)",
			cfg.Env, strings.Join(validEnvs, ", "))
	}

	if cfg.Rate.Limit < 0 {
		return fmt.Errorf("rate limit must be zero or positive")
	}
	if cfg.Rate.Limit > 0 && cfg.Rate.Burst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting is enabled")
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", cfg.Port)
	}

	if cfg.Timeout.Read <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}

	if cfg.Timeout.Write <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}

	if cfg.Timeout.Shutdown <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	if cfg.Path.Base != "" && !strings.HasPrefix(cfg.Path.Base, "/") {
		return fmt.Errorf("base path must start with '/': %s", cfg.Path.Base)
	}

	return nil
}

func validateDatabase(cfg *DatabaseConfig) error {
	if cfg.Type != PostgreSQL {
		return fmt.Errorf("invalid database type: %s (must be: %s)", cfg.Type, PostgreSQL)
	}

	if cfg.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", cfg.Port)
	}

	if cfg.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.Username == "" {
		return fmt.Errorf("database username is required")
	}

	validModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if cfg.SSLMode != "" && !slices.Contains(validModes, cfg.SSLMode) {
		return fmt.Errorf("invalid sslmode: %s (must be one of: %s)",
			cfg.SSLMode, strings.Join(validModes, ", "))
	}

	if cfg.Pool.Max.Connections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}

	if cfg.Pool.Idle.Connections < 0 || cfg.Pool.Idle.Connections > cfg.Pool.Max.Connections {
		return fmt.Errorf("idle connections must be between 0 and max connections")
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	if !slices.Contains(validLevels, cfg.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)",
			cfg.Level, strings.Join(validLevels, ", "))
	}

	return nil
}

func validateAuth(cfg *AuthConfig, env string) error {
	switch cfg.Mode {
	case AuthModeJWT:
		if len(cfg.JWT.Secret) < minJWTSecretLength {
			return fmt.Errorf("jwt secret must be at least %d bytes", minJWTSecretLength)
		}
		if cfg.JWT.TTL <= 0 {
			return fmt.Errorf("jwt ttl must be positive")
		}
	case AuthModeHeader:
		if env == EnvProduction {
			return fmt.Errorf("header authentication is not allowed in %s", EnvProduction)
		}
		if cfg.Header == "" {
			return fmt.Errorf("auth header name is required")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be one of: %s, %s)", cfg.Mode, AuthModeJWT, AuthModeHeader)
	}

	return nil
}

func validateTenancy(cfg *TenancyConfig) error {
	if strings.TrimSpace(cfg.DefaultGroup) == "" {
		return fmt.Errorf("default group is required")
	}
	return nil
}

func validateMessaging(cfg *MessagingConfig) error {
	if cfg.BrokerURL == "" {
		return nil
	}
	if !strings.HasPrefix(cfg.BrokerURL, "amqp://") && !strings.HasPrefix(cfg.BrokerURL, "amqps://") {
		return fmt.Errorf("broker url must use amqp:// or amqps://")
	}
	if cfg.Exchange == "" {
		return fmt.Errorf("exchange is required when a broker is configured")
	}
	return nil
}

func validateObservability(cfg *ObservabilityConfig) error {
	if !cfg.Enabled {
		return nil
	}

	switch cfg.Exporter {
	case ExporterStdout:
	case ExporterOTLP:
		if cfg.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires an endpoint")
		}
	default:
		return fmt.Errorf("invalid exporter: %s (must be one of: %s, %s)", cfg.Exporter, ExporterStdout, ExporterOTLP)
	}

	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1")
	}
	if cfg.MetricInterval < 0 {
		return fmt.Errorf("metric interval must not be negative")
	}

	return nil
}

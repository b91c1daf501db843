package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config represents the overall application configuration structure.
// Keys use dots for nesting and no underscores, so APP_RATE_LIMIT maps to app.rate.limit.
type Config struct {
	App           AppConfig           `koanf:"app" json:"app" yaml:"app"`
	Server        ServerConfig        `koanf:"server" json:"server" yaml:"server"`
	Database      DatabaseConfig      `koanf:"database" json:"database" yaml:"database"`
	Log           LogConfig           `koanf:"log" json:"log" yaml:"log"`
	Auth          AuthConfig          `koanf:"auth" json:"auth" yaml:"auth"`
	Tenancy       TenancyConfig       `koanf:"tenancy" json:"tenancy" yaml:"tenancy"`
	Messaging     MessagingConfig     `koanf:"messaging" json:"messaging" yaml:"messaging"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string     `koanf:"name" json:"name" yaml:"name"`
	Version string     `koanf:"version" json:"version" yaml:"version"`
	Env     string     `koanf:"env" json:"env" yaml:"env"`
	Debug   bool       `koanf:"debug" json:"debug" yaml:"debug"`
	Rate    RateConfig `koanf:"rate" json:"rate" yaml:"rate"`
}

// RateConfig holds per-principal rate limiting settings. A zero limit disables limiting.
type RateConfig struct {
	Limit int `koanf:"limit" json:"limit" yaml:"limit"`
	Burst int `koanf:"burst" json:"burst" yaml:"burst"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" json:"host" yaml:"host"`
	Port    int           `koanf:"port" json:"port" yaml:"port"`
	Timeout TimeoutConfig `koanf:"timeout" json:"timeout" yaml:"timeout"`
	Path    PathConfig    `koanf:"path" json:"path" yaml:"path"`
	// BodyLimit is passed to echo's BodyLimit middleware, e.g. "2M".
	BodyLimit string `koanf:"bodylimit" json:"bodylimit" yaml:"bodylimit"`
}

// TimeoutConfig holds various timeout durations for the server.
type TimeoutConfig struct {
	Read     time.Duration `koanf:"read" json:"read" yaml:"read"`
	Write    time.Duration `koanf:"write" json:"write" yaml:"write"`
	Idle     time.Duration `koanf:"idle" json:"idle" yaml:"idle"`
	Shutdown time.Duration `koanf:"shutdown" json:"shutdown" yaml:"shutdown"`
}

// PathConfig holds URL path settings for the server.
type PathConfig struct {
	Base   string `koanf:"base" json:"base" yaml:"base"`
	Health string `koanf:"health" json:"health" yaml:"health"`
	Ready  string `koanf:"ready" json:"ready" yaml:"ready"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Type     string     `koanf:"type" json:"type" yaml:"type"`
	Host     string     `koanf:"host" json:"host" yaml:"host"`
	Port     int        `koanf:"port" json:"port" yaml:"port"`
	Database string     `koanf:"database" json:"database" yaml:"database"`
	Username string     `koanf:"username" json:"username" yaml:"username"`
	Password string     `koanf:"password" json:"-" yaml:"password"`
	SSLMode  string     `koanf:"sslmode" json:"sslmode" yaml:"sslmode"`
	Pool     PoolConfig `koanf:"pool" json:"pool" yaml:"pool"`
	// Migrate applies embedded migrations on startup.
	Migrate bool `koanf:"migrate" json:"migrate" yaml:"migrate"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	Max      PoolMaxConfig  `koanf:"max" json:"max" yaml:"max"`
	Idle     PoolIdleConfig `koanf:"idle" json:"idle" yaml:"idle"`
	Lifetime time.Duration  `koanf:"lifetime" json:"lifetime" yaml:"lifetime"`
}

// PoolMaxConfig holds the open connection ceiling.
type PoolMaxConfig struct {
	Connections int `koanf:"connections" json:"connections" yaml:"connections"`
}

// PoolIdleConfig holds idle connection settings.
type PoolIdleConfig struct {
	Connections int           `koanf:"connections" json:"connections" yaml:"connections"`
	Time        time.Duration `koanf:"time" json:"time" yaml:"time"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// AuthConfig selects how requests are authenticated.
type AuthConfig struct {
	// Mode is AuthModeJWT or AuthModeHeader.
	Mode string    `koanf:"mode" json:"mode" yaml:"mode"`
	JWT  JWTConfig `koanf:"jwt" json:"jwt" yaml:"jwt"`
	// Header names the trusted header carrying the user id in header mode.
	Header string `koanf:"header" json:"header" yaml:"header"`
}

// JWTConfig holds bearer token settings.
type JWTConfig struct {
	Secret string        `koanf:"secret" json:"-" yaml:"secret"`
	Issuer string        `koanf:"issuer" json:"issuer" yaml:"issuer"`
	TTL    time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl"`
}

// TenancyConfig holds tenant resolution settings.
type TenancyConfig struct {
	// DefaultGroup is assigned to every newly created user.
	DefaultGroup string `koanf:"defaultgroup" json:"defaultgroup" yaml:"defaultgroup"`
	// StaffBypass lets staff principals without a tenant see every tenant's rows.
	StaffBypass bool `koanf:"staffbypass" json:"staffbypass" yaml:"staffbypass"`
}

// MessagingConfig holds domain event publishing settings. An empty BrokerURL disables publishing.
type MessagingConfig struct {
	BrokerURL string `koanf:"brokerurl" json:"-" yaml:"brokerurl"`
	Exchange  string `koanf:"exchange" json:"exchange" yaml:"exchange"`
}

// ObservabilityConfig holds tracing and metrics settings. Both signals share
// the exporter and endpoint.
type ObservabilityConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled"`
	// Exporter is ExporterStdout or ExporterOTLP.
	Exporter   string  `koanf:"exporter" json:"exporter" yaml:"exporter"`
	Endpoint   string  `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Insecure   bool    `koanf:"insecure" json:"insecure" yaml:"insecure"`
	SampleRate float64 `koanf:"samplerate" json:"samplerate" yaml:"samplerate"`
	// MetricInterval is the period between metric exports.
	MetricInterval time.Duration `koanf:"metricinterval" json:"metricinterval" yaml:"metricinterval"`
}

// Koanf exposes the underlying koanf instance for keys the struct does not model.
func (c *Config) Koanf() *koanf.Koanf {
	return c.k
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

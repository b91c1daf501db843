package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{Name: "svc", Version: "v1", Env: EnvDevelopment, Rate: RateConfig{Limit: 10, Burst: 20}},
		Server: ServerConfig{
			Port:    8080,
			Timeout: TimeoutConfig{Read: time.Second, Write: time.Second, Shutdown: time.Second},
			Path:    PathConfig{Base: "/api"},
		},
		Database: DatabaseConfig{
			Type: PostgreSQL, Host: "localhost", Port: 5432, Database: "practice", Username: "u",
			SSLMode: "disable",
			Pool:    PoolConfig{Max: PoolMaxConfig{Connections: 5}, Idle: PoolIdleConfig{Connections: 1}},
		},
		Log:     LogConfig{Level: "info"},
		Auth:    AuthConfig{Mode: AuthModeJWT, JWT: JWTConfig{Secret: testSecret, TTL: time.Hour}, Header: "X-User-ID"},
		Tenancy: TenancyConfig{DefaultGroup: "GoogleUsers"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: "app name is required"},
		{name: "unknown env", mutate: func(c *Config) { c.App.Env = "qa" }, wantErr: "invalid environment"},
		{name: "rate without burst", mutate: func(c *Config) { c.App.Rate.Burst = 0 }, wantErr: "rate burst"},
		{name: "rate disabled", mutate: func(c *Config) { c.App.Rate = RateConfig{} }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid port"},
		{name: "relative base path", mutate: func(c *Config) { c.Server.Path.Base = "api" }, wantErr: "base path"},
		{name: "unsupported database", mutate: func(c *Config) { c.Database.Type = "oracle" }, wantErr: "invalid database type"},
		{name: "bad sslmode", mutate: func(c *Config) { c.Database.SSLMode = "maybe" }, wantErr: "invalid sslmode"},
		{name: "idle above max", mutate: func(c *Config) { c.Database.Pool.Idle.Connections = 9 }, wantErr: "idle connections"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "invalid log level"},
		{name: "unknown auth mode", mutate: func(c *Config) { c.Auth.Mode = "basic" }, wantErr: "invalid auth mode"},
		{name: "header mode in development", mutate: func(c *Config) { c.Auth.Mode = AuthModeHeader }},
		{name: "header mode in production", mutate: func(c *Config) {
			c.Auth.Mode = AuthModeHeader
			c.App.Env = EnvProduction
		}, wantErr: "not allowed"},
		{name: "blank default group", mutate: func(c *Config) { c.Tenancy.DefaultGroup = " " }, wantErr: "default group"},
		{name: "broker scheme", mutate: func(c *Config) { c.Messaging.BrokerURL = "http://rabbit" }, wantErr: "amqp"},
		{name: "broker without exchange", mutate: func(c *Config) { c.Messaging.BrokerURL = "amqp://rabbit" }, wantErr: "exchange"},
		{name: "otlp without endpoint", mutate: func(c *Config) {
			c.Observability = ObservabilityConfig{Enabled: true, Exporter: ExporterOTLP, SampleRate: 1}
		}, wantErr: "endpoint"},
		{name: "sample rate out of range", mutate: func(c *Config) {
			c.Observability = ObservabilityConfig{Enabled: true, Exporter: ExporterStdout, SampleRate: 2}
		}, wantErr: "sample rate"},
		{name: "negative metric interval", mutate: func(c *Config) {
			c.Observability = ObservabilityConfig{Enabled: true, Exporter: ExporterStdout, SampleRate: 1, MetricInterval: -time.Second}
		}, wantErr: "metric interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string
	HTTPAddr string

	DatabaseURL string
	RedisURL    string

	JWTSecret  string
	JWTIssuer  string
	BcryptCost int

	APIRateLimitRPM  int
	AuthRateLimitRPM int

	SweepEnabled  bool
	SweepInterval time.Duration

	LogLevelName    string
	ShutdownTimeout time.Duration

	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELMetricsExportInterval time.Duration
}

func (c *Config) Development() bool {
	return normalizeConfigProfile(c.AppEnv) != "production"
}

func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.LogLevelName) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads PENDEK_AUTH_* environment variables, optionally layered over a
// config.yaml found in the working directory or /etc/pendek-auth.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PENDEK_AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("jwt.issuer", "pendek-auth")
	v.SetDefault("bcrypt.cost", 12)
	v.SetDefault("ratelimit.api.rpm", 300)
	v.SetDefault("ratelimit.auth.rpm", 30)
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("shutdown.timeout", 15*time.Second)
	v.SetDefault("otel.metrics.enabled", false)
	v.SetDefault("otel.traces.enabled", false)
	v.SetDefault("otel.logs.enabled", false)
	v.SetDefault("otel.exporter.endpoint", "localhost:4317")
	v.SetDefault("otel.exporter.insecure", true)
	v.SetDefault("otel.service.name", "pendek-auth")
	v.SetDefault("otel.metrics.interval", 30*time.Second)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pendek-auth")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			recordConfigValidationEvent(context.Background(), v.GetString("app.env"), "failure", "load")
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		AppEnv:                    v.GetString("app.env"),
		HTTPAddr:                  v.GetString("http.addr"),
		DatabaseURL:               v.GetString("database.url"),
		RedisURL:                  v.GetString("redis.url"),
		JWTSecret:                 v.GetString("jwt.secret"),
		JWTIssuer:                 v.GetString("jwt.issuer"),
		BcryptCost:                v.GetInt("bcrypt.cost"),
		APIRateLimitRPM:           v.GetInt("ratelimit.api.rpm"),
		AuthRateLimitRPM:          v.GetInt("ratelimit.auth.rpm"),
		SweepEnabled:              v.GetBool("sweep.enabled"),
		SweepInterval:             v.GetDuration("sweep.interval"),
		LogLevelName:              v.GetString("log.level"),
		ShutdownTimeout:           v.GetDuration("shutdown.timeout"),
		OTELMetricsEnabled:        v.GetBool("otel.metrics.enabled"),
		OTELTracesEnabled:         v.GetBool("otel.traces.enabled"),
		OTELLogsEnabled:           v.GetBool("otel.logs.enabled"),
		OTELExporterOTLPEndpoint:  v.GetString("otel.exporter.endpoint"),
		OTELExporterOTLPInsecure:  v.GetBool("otel.exporter.insecure"),
		OTELServiceName:           v.GetString("otel.service.name"),
		OTELMetricsExportInterval: v.GetDuration("otel.metrics.interval"),
	}
	if cfg.SweepInterval == 0 {
		// Faster sweeps outside production keep local databases tidy.
		if cfg.Development() {
			cfg.SweepInterval = time.Minute
		} else {
			cfg.SweepInterval = 24 * time.Hour
		}
	}

	if err := cfg.validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.AppEnv, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.AppEnv, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("validate config: PENDEK_AUTH_DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("validate config: PENDEK_AUTH_JWT_SECRET must be at least 32 characters")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("validate config: sweep interval must be positive")
	}
	if c.APIRateLimitRPM <= 0 || c.AuthRateLimitRPM <= 0 {
		return fmt.Errorf("validate config: rate limits must be positive")
	}
	return nil
}

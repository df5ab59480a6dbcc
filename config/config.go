package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Admin     AdminConfig
	Billing   BillingConfig
}

type ServerConfig struct {
	Host                    string
	Port                    int
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	IdleTimeout             time.Duration
	GracefulShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// RateLimitConfig carries the six recognized throttling keys from spec §4.5.
type RateLimitConfig struct {
	Throttling          string  // "hard" or "soft"
	SoftDelayMs         int     // [0, 60000], default 100
	GlobalSoftThreshold float64 // default 0.80
	GlobalWarnThreshold float64 // default 0.80
	GlobalFullThreshold float64 // default 1.00
	GlobalHardThreshold float64 // default 1.20
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

type AdminConfig struct {
	AdminSecret string
}

type BillingConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:                    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:                    getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:             getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:            getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:             getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			GracefulShutdownTimeout: getEnvDuration("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", 1*time.Hour),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Throttling:          getEnv("RATE_LIMIT_THROTTLING", "hard"),
			SoftDelayMs:         getEnvInt("RATE_LIMIT_SOFT_DELAY_MS", 100),
			GlobalSoftThreshold: getEnvFloat("RATE_LIMIT_GLOBAL_SOFT_THRESHOLD", 0.80),
			GlobalWarnThreshold: getEnvFloat("RATE_LIMIT_GLOBAL_WARN_THRESHOLD", 0.80),
			GlobalFullThreshold: getEnvFloat("RATE_LIMIT_GLOBAL_FULL_THRESHOLD", 1.00),
			GlobalHardThreshold: getEnvFloat("RATE_LIMIT_GLOBAL_HARD_THRESHOLD", 1.20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Admin: AdminConfig{
			AdminSecret: getEnv("ADMIN_SECRET", ""),
		},
		Billing: BillingConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}
	if c.RateLimit.Throttling != "hard" && c.RateLimit.Throttling != "soft" {
		return fmt.Errorf("rate limit throttling must be 'hard' or 'soft'")
	}
	if c.RateLimit.SoftDelayMs < 0 || c.RateLimit.SoftDelayMs > 60000 {
		return fmt.Errorf("rate limit soft delay must be within [0, 60000]ms")
	}
	rl := c.RateLimit
	if !(0 < rl.GlobalSoftThreshold && rl.GlobalSoftThreshold <= rl.GlobalWarnThreshold &&
		rl.GlobalWarnThreshold <= rl.GlobalFullThreshold && rl.GlobalFullThreshold <= rl.GlobalHardThreshold) {
		return fmt.Errorf("rate limit thresholds must satisfy 0 < soft <= warn <= full <= hard")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

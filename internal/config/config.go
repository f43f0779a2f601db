// Package config provides configuration for the enrichment service.
// Values come from environment variables, optionally seeded from a
// .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Worker     WorkerConfig
	Sweep      SweepConfig
	Services   ServicesConfig
	Instrument InstrumentConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig groups the storage backends.
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds record store configuration.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds queue transport configuration.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// WorkerConfig holds queue worker configuration.
type WorkerConfig struct {
	Concurrency    int
	DequeueTimeout time.Duration
	// RetryDelay is how far in the future a transient failure's
	// re-enqueue is scheduled.
	RetryDelay time.Duration
	// MetricsPort serves the worker's Prometheus endpoint. Empty
	// disables it.
	MetricsPort string
}

// SweepConfig holds bulk refresh sweep configuration.
type SweepConfig struct {
	Enabled bool
	// Slots is the number of scheduling slots the stale backlog is
	// partitioned across. 24 pairs one slot with each hour of the day.
	Slots int
	// Spec is the cron expression that fires the sweep.
	Spec string
}

// ServicesConfig holds per-service configuration.
type ServicesConfig struct {
	Enabled  []string
	GitHub   ServiceConfig
	Twitter  ServiceConfig
	Dribbble ServiceConfig
	LinkedIn ServiceConfig
}

// ServiceConfig configures one concrete service.
type ServiceConfig struct {
	Token           string
	BaseURL         string
	RefreshInterval time.Duration
	// RequestsPerSecond caps outbound calls to the service's API.
	RequestsPerSecond float64
}

// InstrumentConfig holds observer sink configuration.
type InstrumentConfig struct {
	ClickHouse ClickHouseConfig
}

// ClickHouseConfig holds the job event log configuration. Host left
// empty disables the sink.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, seeding from .env
// when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "enricher"),
				User:           getEnv("POSTGRES_USER", "enricher"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Worker: WorkerConfig{
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 5),
			DequeueTimeout: getEnvAsDuration("WORKER_DEQUEUE_TIMEOUT", 5*time.Second),
			RetryDelay:     getEnvAsDuration("WORKER_RETRY_DELAY", 60*time.Second),
			MetricsPort:    getEnv("WORKER_METRICS_PORT", "9090"),
		},
		Sweep: SweepConfig{
			Enabled: getEnvAsBool("SWEEP_ENABLED", true),
			Slots:   getEnvAsInt("SWEEP_SLOTS", 24),
			Spec:    getEnv("SWEEP_CRON_SPEC", "0 * * * *"),
		},
		Services: loadServiceConfigs(),
		Instrument: InstrumentConfig{
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "enricher"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// loadServiceConfigs reads the per-service settings. Refresh intervals
// default to the rates each upstream API tolerates well: an hour for
// twitter, a day for the rest.
func loadServiceConfigs() ServicesConfig {
	enabled := strings.Split(getEnv("ENABLED_SERVICES", "github,twitter,dribbble,linkedin"), ",")
	for i := range enabled {
		enabled[i] = strings.TrimSpace(enabled[i])
	}

	return ServicesConfig{
		Enabled: enabled,
		GitHub: ServiceConfig{
			Token:             getEnv("GITHUB_TOKEN", ""),
			BaseURL:           getEnv("GITHUB_API_URL", "https://api.github.com"),
			RefreshInterval:   getEnvAsDuration("GITHUB_REFRESH_INTERVAL", 24*time.Hour),
			RequestsPerSecond: getEnvAsFloat("GITHUB_REQUESTS_PER_SECOND", 5),
		},
		Twitter: ServiceConfig{
			Token:             getEnv("TWITTER_BEARER_TOKEN", ""),
			BaseURL:           getEnv("TWITTER_API_URL", "https://api.twitter.com"),
			RefreshInterval:   getEnvAsDuration("TWITTER_REFRESH_INTERVAL", time.Hour),
			RequestsPerSecond: getEnvAsFloat("TWITTER_REQUESTS_PER_SECOND", 1),
		},
		Dribbble: ServiceConfig{
			Token:             getEnv("DRIBBBLE_TOKEN", ""),
			BaseURL:           getEnv("DRIBBBLE_API_URL", "https://api.dribbble.com"),
			RefreshInterval:   getEnvAsDuration("DRIBBBLE_REFRESH_INTERVAL", 24*time.Hour),
			RequestsPerSecond: getEnvAsFloat("DRIBBBLE_REQUESTS_PER_SECOND", 1),
		},
		LinkedIn: ServiceConfig{
			Token:             getEnv("LINKEDIN_TOKEN", ""),
			BaseURL:           getEnv("LINKEDIN_API_URL", "https://api.linkedin.com"),
			RefreshInterval:   getEnvAsDuration("LINKEDIN_REFRESH_INTERVAL", 24*time.Hour),
			RequestsPerSecond: getEnvAsFloat("LINKEDIN_REQUESTS_PER_SECOND", 1),
		},
	}
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

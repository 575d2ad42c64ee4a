package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

/* Config is read from the environment, optionally overridden by a .env file in the working directory */

type Config struct {
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	QueueName             string `mapstructure:"QUEUE_NAME"`
	WorkerConcurrency     int    `mapstructure:"WORKER_CONCURRENCY"`
	AttemptTimeoutSeconds int    `mapstructure:"ATTEMPT_TIMEOUT_SECONDS"`
	QueueMaxAttempts      int    `mapstructure:"QUEUE_MAX_ATTEMPTS"`
	QueueBackoffMs        int    `mapstructure:"QUEUE_BACKOFF_MS"`
	QueuePollIntervalMs   int    `mapstructure:"QUEUE_POLL_INTERVAL_MS"`

	ProvidersFile string `mapstructure:"PROVIDERS_FILE"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogJSON  bool   `mapstructure:"LOG_JSON"`

	PostgresMaxOpenConns       int `mapstructure:"POSTGRES_MAX_OPEN_CONNS"`
	PostgresMaxIdleConns       int `mapstructure:"POSTGRES_MAX_IDLE_CONNS"`
	PostgresConnMaxLifeMinutes int `mapstructure:"POSTGRES_CONN_MAX_LIFE_MINUTES"`
}

// ErrMissingDatabaseURL is returned when DATABASE_URL is not set
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

var defaults = map[string]any{
	"PORT":                           "8080",
	"DATABASE_URL":                   "",
	"REDIS_URL":                      "",
	"QUEUE_NAME":                     "deliveries",
	"WORKER_CONCURRENCY":             5,
	"ATTEMPT_TIMEOUT_SECONDS":        15,
	"QUEUE_MAX_ATTEMPTS":             3,
	"QUEUE_BACKOFF_MS":               1000,
	"QUEUE_POLL_INTERVAL_MS":         1000,
	"PROVIDERS_FILE":                 "",
	"LOG_LEVEL":                      "info",
	"LOG_JSON":                       true,
	"POSTGRES_MAX_OPEN_CONNS":        25,
	"POSTGRES_MAX_IDLE_CONNS":        5,
	"POSTGRES_CONN_MAX_LIFE_MINUTES": 5,
}

func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads the configuration; a missing .env file in dir is not an error
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	// keys must be known for AutomaticEnv to reach them through Unmarshal
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required keys and numeric ranges
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrMissingDatabaseURL
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.QueueMaxAttempts)
	}
	if c.AttemptTimeoutSeconds < 1 {
		return fmt.Errorf("ATTEMPT_TIMEOUT_SECONDS must be at least 1, got %d", c.AttemptTimeoutSeconds)
	}
	if c.QueueBackoffMs < 0 || c.QueuePollIntervalMs < 0 {
		return fmt.Errorf("queue durations cannot be negative")
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// AttemptTimeout bounds one broadcaster round trip
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}

// QueueBackoff is the base delay of the exponential retry backoff
func (c *Config) QueueBackoff() time.Duration {
	return time.Duration(c.QueueBackoffMs) * time.Millisecond
}

// QueuePollInterval is how often idle consumers look for work
func (c *Config) QueuePollInterval() time.Duration {
	return time.Duration(c.QueuePollIntervalMs) * time.Millisecond
}

// ConnMaxLifetime bounds how long a pooled Postgres connection is reused
func (c *Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.PostgresConnMaxLifeMinutes) * time.Minute
}

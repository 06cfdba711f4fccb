// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Database, Redis, Kafka, Search, RateLimit, Ingest, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig holds the relational store settings. Driver selects the
// database/sql driver: "sqlite" (embedded, the default) or "postgres".
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds Redis connection and result-cache parameters. When
// Enabled is false the service uses the in-memory result cache instead.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the settings for the Kafka ingestion source. When
// Enabled is false no Kafka source is registered.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	Topic         string   `yaml:"topic"`
	MaxBatch      int      `yaml:"maxBatch"`
}

// SearchConfig controls query parameter defaults.
type SearchConfig struct {
	DefaultTopK      int     `yaml:"defaultTopK"`
	DefaultThreshold float64 `yaml:"defaultThreshold"`
}

// RateLimitConfig bounds how many search requests one caller may issue
// inside a fixed window.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"maxRequests"`
	Window      time.Duration `yaml:"window"`
}

// IngestConfig controls the background ingestion coordinator. Schedule, when
// set, is a cron expression that overrides the fixed Interval.
type IngestConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Schedule        string        `yaml:"schedule"`
	MaxDocsPerCycle int           `yaml:"maxDocsPerCycle"`
	SourceTimeout   time.Duration `yaml:"sourceTimeout"`
	Webpages        []string      `yaml:"webpages"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for running the
// service standalone against the embedded database.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "docsearch.db",
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch-ingest",
			Topic:         "document-candidates",
			MaxBatch:      100,
		},
		Search: SearchConfig{
			DefaultTopK:      10,
			DefaultThreshold: 0.5,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 5,
			Window:      time.Minute,
		},
		Ingest: IngestConfig{
			Interval:        5 * time.Minute,
			MaxDocsPerCycle: 50,
			SourceTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("rateLimit.maxRequests must be at least 1, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("rateLimit.window must be positive, got %v", cfg.RateLimit.Window)
	}
	if t := cfg.Search.DefaultThreshold; t < 0 || t > 1 {
		return fmt.Errorf("search.defaultThreshold must be in [0,1], got %v", t)
	}
	if cfg.Ingest.Interval <= 0 && cfg.Ingest.Schedule == "" {
		return fmt.Errorf("ingest.interval must be positive when no schedule is set")
	}
	if cfg.Ingest.MaxDocsPerCycle < 1 {
		return fmt.Errorf("ingest.maxDocsPerCycle must be at least 1, got %d", cfg.Ingest.MaxDocsPerCycle)
	}
	return nil
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DS_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DS_DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DS_DATABASE_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DS_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DS_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DS_DATABASE_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("DS_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("DS_RATELIMIT_MAX_REQUESTS"); v != "" {
		if maxReq, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxRequests = maxReq
		}
	}
	if v := os.Getenv("DS_RATELIMIT_WINDOW"); v != "" {
		if window, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.Window = window
		}
	}
	if v := os.Getenv("DS_INGEST_INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.Interval = interval
		}
	}
	if v := os.Getenv("DS_INGEST_SCHEDULE"); v != "" {
		cfg.Ingest.Schedule = v
	}
	if v := os.Getenv("DS_INGEST_WEBPAGES"); v != "" {
		cfg.Ingest.Webpages = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

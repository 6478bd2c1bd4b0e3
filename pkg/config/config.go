// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Credits, Search, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TS_"

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Credits   CreditsConfig   `yaml:"credits"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	CORSOrigin      string        `yaml:"corsOrigin"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection and result-page caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CreditsConfig prices the paid actions and seeds new accounts.
type CreditsConfig struct {
	DefaultBalance int64 `yaml:"defaultBalance"`
	SearchCost     int64 `yaml:"searchCost"`
	UnlockCost     int64 `yaml:"unlockCost"`
}

// SearchConfig controls the search pipeline and result pagination.
type SearchConfig struct {
	StageMinDuration       time.Duration `yaml:"stageMinDuration"`
	StageMaxDuration       time.Duration `yaml:"stageMaxDuration"`
	ResultCount            int           `yaml:"resultCount"`
	DefaultPageSize        int           `yaml:"defaultPageSize"`
	MaxPageSize            int           `yaml:"maxPageSize"`
	MaxConcurrentPipelines int           `yaml:"maxConcurrentPipelines"`
	StuckThreshold         time.Duration `yaml:"stuckThreshold"`
	StuckCheckSchedule     string        `yaml:"stuckCheckSchedule"`
	DefaultAccountID       int64         `yaml:"defaultAccountId"`
}

// RateLimitConfig bounds how often one account may start searches.
type RateLimitConfig struct {
	SearchPerMinute int `yaml:"searchPerMinute"`
}

// AnalyticsConfig controls the analytics service.
type AnalyticsConfig struct {
	Port             int    `yaml:"port"`
	BufferSize       int    `yaml:"bufferSize"`
	SnapshotSchedule string `yaml:"snapshotSchedule"`
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

// Load reads a YAML config file (if provided and present) and applies
// environment-variable overrides. A .env file in the working directory is
// loaded first; variables already set in the process environment win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Credits.DefaultBalance < 0 {
		errs = append(errs, errors.New("credits.defaultBalance must not be negative"))
	}
	if c.Credits.SearchCost <= 0 {
		errs = append(errs, errors.New("credits.searchCost must be positive"))
	}
	if c.Credits.UnlockCost <= 0 {
		errs = append(errs, errors.New("credits.unlockCost must be positive"))
	}
	if c.Search.StageMinDuration < 0 {
		errs = append(errs, errors.New("search.stageMinDuration must not be negative"))
	}
	if c.Search.StageMaxDuration < c.Search.StageMinDuration {
		errs = append(errs, errors.New("search.stageMaxDuration must be >= search.stageMinDuration"))
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize < c.Search.DefaultPageSize {
		errs = append(errs, errors.New("search.defaultPageSize must be positive and <= search.maxPageSize"))
	}
	if c.Search.MaxConcurrentPipelines <= 0 {
		errs = append(errs, errors.New("search.maxConcurrentPipelines must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			CORSOrigin:      "*",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "talentsearch",
			User:            "postgres",
			Password:        "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "talentsearch-analytics",
			Topics: KafkaTopics{
				SearchEvents: "search-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 30 * time.Second,
		},
		Credits: CreditsConfig{
			DefaultBalance: 1000,
			SearchCost:     10,
			UnlockCost:     5,
		},
		Search: SearchConfig{
			StageMinDuration:       2 * time.Second,
			StageMaxDuration:       30 * time.Second,
			ResultCount:            30,
			DefaultPageSize:        12,
			MaxPageSize:            100,
			MaxConcurrentPipelines: 64,
			StuckThreshold:         5 * time.Minute,
			StuckCheckSchedule:     "@every 1m",
			DefaultAccountID:       1,
		},
		RateLimit: RateLimitConfig{
			SearchPerMinute: 30,
		},
		Analytics: AnalyticsConfig{
			Port:             8085,
			BufferSize:       10000,
			SnapshotSchedule: "@every 5m",
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

// envOverrides collects parse failures so every bad variable is reported.
type envOverrides struct {
	errs []error
}

func (e *envOverrides) str(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func (e *envOverrides) integer(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *envOverrides) int64(key string, dst *int64) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *envOverrides) boolean(key string, dst *bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = b
	}
}

func (e *envOverrides) duration(key string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = d
	}
}

// applyEnvOverrides reads TS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	e := &envOverrides{}

	e.integer("SERVER_PORT", &cfg.Server.Port)
	e.duration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	e.str("SERVER_CORS_ORIGIN", &cfg.Server.CORSOrigin)
	e.boolean("SERVER_AUTO_MIGRATE", &cfg.Server.AutoMigrate)

	e.str("POSTGRES_HOST", &cfg.Postgres.Host)
	e.integer("POSTGRES_PORT", &cfg.Postgres.Port)
	e.str("POSTGRES_DATABASE", &cfg.Postgres.Database)
	e.str("POSTGRES_USER", &cfg.Postgres.User)
	e.str("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	e.str("POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	e.integer("POSTGRES_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns)

	e.boolean("KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv(EnvPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	e.str("KAFKA_TOPIC_SEARCH_EVENTS", &cfg.Kafka.Topics.SearchEvents)

	e.boolean("REDIS_ENABLED", &cfg.Redis.Enabled)
	e.str("REDIS_ADDR", &cfg.Redis.Addr)
	e.str("REDIS_PASSWORD", &cfg.Redis.Password)
	e.duration("REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)

	e.int64("CREDITS_DEFAULT_BALANCE", &cfg.Credits.DefaultBalance)
	e.int64("CREDITS_SEARCH_COST", &cfg.Credits.SearchCost)
	e.int64("CREDITS_UNLOCK_COST", &cfg.Credits.UnlockCost)

	e.duration("SEARCH_STAGE_MIN_DURATION", &cfg.Search.StageMinDuration)
	e.duration("SEARCH_STAGE_MAX_DURATION", &cfg.Search.StageMaxDuration)
	e.integer("SEARCH_RESULT_COUNT", &cfg.Search.ResultCount)
	e.integer("SEARCH_DEFAULT_PAGE_SIZE", &cfg.Search.DefaultPageSize)
	e.integer("SEARCH_MAX_CONCURRENT_PIPELINES", &cfg.Search.MaxConcurrentPipelines)
	e.duration("SEARCH_STUCK_THRESHOLD", &cfg.Search.StuckThreshold)
	e.int64("SEARCH_DEFAULT_ACCOUNT_ID", &cfg.Search.DefaultAccountID)

	e.integer("RATELIMIT_SEARCH_PER_MINUTE", &cfg.RateLimit.SearchPerMinute)

	e.str("LOGGING_LEVEL", &cfg.Logging.Level)
	e.str("LOGGING_FORMAT", &cfg.Logging.Format)
	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.integer("METRICS_PORT", &cfg.Metrics.Port)

	if len(e.errs) > 0 {
		return fmt.Errorf("invalid environment override: %w", errors.Join(e.errs...))
	}
	return nil
}

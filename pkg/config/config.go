// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Kafka, Redis, Crawler, Indexer, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Redis   RedisConfig   `yaml:"redis"`
	Crawler CrawlerConfig `yaml:"crawler"`
	Indexer IndexerConfig `yaml:"indexer"`
	Search  SearchConfig  `yaml:"search"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	RequestTimeout  time.Duration   `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig controls the per-client request limiter on the search API.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// StoreConfig selects and configures the storage backend shared by the
// crawler, the indexer, and the searcher. Driver is "postgres" or "mongo".
type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
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

// MongoConfig holds MongoDB connection parameters.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
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
	Events string `yaml:"events"`
}

// RedisConfig holds Redis connection parameters for the request limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// CrawlerConfig controls the breadth-first crawl: where it starts, how far it
// goes, and how politely it fetches.
type CrawlerConfig struct {
	Seeds          []string      `yaml:"seeds"`
	AllowedDomains []string      `yaml:"allowedDomains"`
	MaxPages       int           `yaml:"maxPages"`
	MaxDepth       int           `yaml:"maxDepth"`
	Delay          time.Duration `yaml:"delay"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	UserAgent      string        `yaml:"userAgent"`
	SkipExisting   bool          `yaml:"skipExisting"`
}

// IndexerConfig controls the index rebuild: document thresholds, publication
// batch size, the map-phase parallelism, and the single-builder lock.
type IndexerConfig struct {
	MinDocLength     int           `yaml:"minDocLength"`
	SnippetLength    int           `yaml:"snippetLength"`
	BatchSize        int           `yaml:"batchSize"`
	Parallelism      int           `yaml:"parallelism"`
	Interval         time.Duration `yaml:"interval"`
	LockPath         string        `yaml:"lockPath"`
	ShortDocMetadata bool          `yaml:"shortDocMetadata"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxResults   int `yaml:"maxResults"`
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
	// A local .env file is optional; when present its values become part of
	// the environment before overrides are applied.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "mongo":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("invalid search limits: default %d, max %d",
			c.Search.DefaultLimit, c.Search.MaxResults)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:  false,
				Requests: 60,
				Window:   time.Minute,
			},
		},
		Store: StoreConfig{
			Driver: "postgres",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "webseek",
				User:            "webseek",
				Password:        "localdev",
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "webseek",
			},
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "webseek-analytics",
			Topics: KafkaTopics{
				Events: "webseek.events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Crawler: CrawlerConfig{
			MaxPages:       500,
			MaxDepth:       3,
			Delay:          500 * time.Millisecond,
			RequestTimeout: 10 * time.Second,
			UserAgent:      "webseek-crawler/1.0",
			SkipExisting:   true,
		},
		Indexer: IndexerConfig{
			MinDocLength:  50,
			SnippetLength: 300,
			BatchSize:     1000,
			Parallelism:   0,
			LockPath:      "/tmp/webseek-indexer.lock",
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxResults:   50,
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

// applyEnvOverrides reads WS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("WS_POSTGRES_HOST"); v != "" {
		cfg.Store.Postgres.Host = v
	}
	if v := os.Getenv("WS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.Port = port
		}
	}
	if v := os.Getenv("WS_POSTGRES_DATABASE"); v != "" {
		cfg.Store.Postgres.Database = v
	}
	if v := os.Getenv("WS_POSTGRES_USER"); v != "" {
		cfg.Store.Postgres.User = v
	}
	if v := os.Getenv("WS_POSTGRES_PASSWORD"); v != "" {
		cfg.Store.Postgres.Password = v
	}
	if v := os.Getenv("WS_POSTGRES_SSLMODE"); v != "" {
		cfg.Store.Postgres.SSLMode = v
	}
	if v := os.Getenv("WS_MONGO_URI"); v != "" {
		cfg.Store.Mongo.URI = v
	}
	if v := os.Getenv("WS_MONGO_DATABASE"); v != "" {
		cfg.Store.Mongo.Database = v
	}
	if v := os.Getenv("WS_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("WS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("WS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WS_CRAWLER_SEEDS"); v != "" {
		cfg.Crawler.Seeds = strings.Split(v, ",")
	}
	if v := os.Getenv("WS_CRAWLER_ALLOWED_DOMAINS"); v != "" {
		cfg.Crawler.AllowedDomains = strings.Split(v, ",")
	}
	if v := os.Getenv("WS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

// Package config loads and validates application configuration from YAML or
// TOML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, Postgres, Kafka, Redis, Index, Search, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka" toml:"kafka"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Index    IndexConfig    `yaml:"index" toml:"index"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdown_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" toml:"enabled"`
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	Database        string        `yaml:"database" toml:"database"`
	User            string        `yaml:"user" toml:"user"`
	Password        string        `yaml:"password" toml:"password"`
	SSLMode         string        `yaml:"sslMode" toml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"maxOpenConns" toml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"maxIdleConns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" toml:"conn_max_lifetime"`
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
	Brokers       []string    `yaml:"brokers" toml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup" toml:"consumer_group"`
	Topics        KafkaTopics `yaml:"topics" toml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentEvents string `yaml:"documentEvents" toml:"document_events"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	PoolSize int           `yaml:"poolSize" toml:"pool_size"`
	CacheTTL time.Duration `yaml:"cacheTTL" toml:"cache_ttl"`
}

// FieldConfig describes one indexed document field.
type FieldConfig struct {
	Name     string  `yaml:"name" toml:"name"`
	Boost    float64 `yaml:"boost" toml:"boost"`
	Required bool    `yaml:"required" toml:"required"`
}

// IndexConfig controls the index layout, BM25 parameters, the vacuum
// policy and snapshot persistence.
type IndexConfig struct {
	DataDir          string        `yaml:"dataDir" toml:"data_dir"`
	Fields           []FieldConfig `yaml:"fields" toml:"fields"`
	K1               float64       `yaml:"k1" toml:"k1"`
	B                float64       `yaml:"b" toml:"b"`
	Stemming         bool          `yaml:"stemming" toml:"stemming"`
	VacuumThreshold  int           `yaml:"vacuumThreshold" toml:"vacuum_threshold"`
	LiveAverages     bool          `yaml:"liveAverages" toml:"live_averages"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval" toml:"snapshot_interval"`
	ReloadInterval   time.Duration `yaml:"reloadInterval" toml:"reload_interval"`
	KeepSnapshots    int           `yaml:"keepSnapshots" toml:"keep_snapshots"`
	Shards           int           `yaml:"shards" toml:"shards"`
}

// SearchConfig controls query result limits.
type SearchConfig struct {
	MaxResults   int `yaml:"maxResults" toml:"max_results"`
	DefaultLimit int `yaml:"defaultLimit" toml:"default_limit"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

// Load reads a YAML or TOML config file (if provided) and applies
// environment-variable overrides. It returns a Config populated with
// defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Index.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the index has at least one uniquely named field and
// usable BM25 parameters.
func (c IndexConfig) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("index config: at least one field is required")
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("index config: field name must not be empty")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("index config: duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	if c.K1 < 0 || c.B < 0 || c.B > 1 {
		return fmt.Errorf("index config: k1=%v b=%v out of range", c.K1, c.B)
	}
	if c.Shards < 1 {
		return fmt.Errorf("index config: shards must be positive, got %d", c.Shards)
	}
	return nil
}

// Boosts returns the per-field boost factors in field order.
func (c IndexConfig) Boosts() []float64 {
	boosts := make([]float64, len(c.Fields))
	for i, f := range c.Fields {
		boosts[i] = f.Boost
	}
	return boosts
}

// DefaultIndexConfig returns the index defaults: title and body fields, the
// usual BM25 parameters and a vacuum after more than 10 pending removals.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		DataDir: "data/index",
		Fields: []FieldConfig{
			{Name: "title", Boost: 2},
			{Name: "body", Boost: 1},
		},
		K1:               1.2,
		B:                0.75,
		Stemming:         true,
		VacuumThreshold:  10,
		SnapshotInterval: 30 * time.Second,
		ReloadInterval:   15 * time.Second,
		KeepSnapshots:    2,
		Shards:           1,
	}
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "triesearch",
			User:            "triesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "triesearch-indexer",
			Topics: KafkaTopics{
				DocumentEvents: "document-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: DefaultIndexConfig(),
		Search: SearchConfig{
			MaxResults:   100,
			DefaultLimit: 10,
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

// applyEnvOverrides reads TS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TS_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("TS_INDEX_VACUUM_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.VacuumThreshold = n
		}
	}
	if v := os.Getenv("TS_INDEX_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Shards = n
		}
	}
	if v := os.Getenv("TS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

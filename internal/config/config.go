// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"RELEVANCE_HOST" yaml:"host"`
	Port int    `envconfig:"RELEVANCE_GRPC_PORT" yaml:"port"`

	// Prometheus endpoint; 0 disables it
	MetricsPort int `envconfig:"RELEVANCE_METRICS_PORT" yaml:"metrics_port"`

	// Document storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Run lock configuration
	Lock LockConfig `yaml:"lock"`

	// Search engine configuration
	Search SearchConfig `yaml:"search"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Job runner configuration
	Runner RunnerConfig `yaml:"runner"`

	// Judgment configuration
	Judgment JudgmentConfig `yaml:"judgment"`

	// Hybrid optimizer configuration
	Hybrid HybridConfig `yaml:"hybrid"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Type     string `envconfig:"RELEVANCE_STORAGE_TYPE" yaml:"type"` // memory, file, badger, redis
	Path     string `envconfig:"RELEVANCE_STORAGE_PATH" yaml:"path"`
	RedisURL string `envconfig:"RELEVANCE_STORAGE_REDIS_URL" yaml:"redis_url"`
	Prefix   string `envconfig:"RELEVANCE_STORAGE_PREFIX" yaml:"prefix"`
}

// LockConfig selects the run lock backend.
type LockConfig struct {
	Type     string `envconfig:"RELEVANCE_LOCK_TYPE" yaml:"type"` // memory, redis
	RedisURL string `envconfig:"RELEVANCE_LOCK_REDIS_URL" yaml:"redis_url"`
	Prefix   string `envconfig:"RELEVANCE_LOCK_PREFIX" yaml:"prefix"`
}

// SearchConfig holds search engine settings.
type SearchConfig struct {
	Engine  string        `envconfig:"RELEVANCE_SEARCH_ENGINE" yaml:"engine"` // http, qdrant
	URL     string        `envconfig:"RELEVANCE_SEARCH_URL" yaml:"url"`
	Timeout time.Duration `envconfig:"RELEVANCE_SEARCH_TIMEOUT" yaml:"timeout"`

	// RateLimit caps requests per second sent to the engine. 0 = disabled.
	RateLimit float64 `envconfig:"RELEVANCE_SEARCH_RATE_LIMIT" yaml:"rate_limit"`
	Burst     int     `envconfig:"RELEVANCE_SEARCH_BURST" yaml:"burst"`

	BreakerEnabled    bool          `envconfig:"RELEVANCE_SEARCH_BREAKER_ENABLED" yaml:"breaker_enabled"`
	BreakerRatio      float64       `envconfig:"RELEVANCE_SEARCH_BREAKER_RATIO" yaml:"breaker_ratio"`
	BreakerOpenPeriod time.Duration `envconfig:"RELEVANCE_SEARCH_BREAKER_OPEN_PERIOD" yaml:"breaker_open_period"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host             string        `envconfig:"QDRANT_HOST" yaml:"host"`
	Port             int           `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey           string        `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS           bool          `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
	CollectionPrefix string        `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
	Timeout          time.Duration `envconfig:"QDRANT_TIMEOUT" yaml:"timeout"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type            string `envconfig:"RELEVANCE_BUS_TYPE" yaml:"type"`
	KafkaBrokers    string `envconfig:"RELEVANCE_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup      string `envconfig:"RELEVANCE_KAFKA_GROUP" yaml:"kafka_group"`
	EventLogEnabled bool   `envconfig:"RELEVANCE_EVENT_LOG_ENABLED" yaml:"event_log_enabled"`
	EventLogPath    string `envconfig:"RELEVANCE_EVENT_LOG_PATH" yaml:"event_log_path"`
}

// RunnerConfig holds job runner settings.
type RunnerConfig struct {
	// Enabled switches the workbench on. While off, experiments are not run
	// and schedules cannot be added or triggered.
	Enabled           bool          `envconfig:"RELEVANCE_WORKBENCH_ENABLED" yaml:"enabled"`
	Workers           int           `envconfig:"RELEVANCE_RUNNER_WORKERS" yaml:"workers"`
	MaxQuerySetSize   int           `envconfig:"RELEVANCE_MAX_QUERY_SET_SIZE" yaml:"max_query_set_size"`
	DefaultLockPeriod time.Duration `envconfig:"RELEVANCE_DEFAULT_LOCK_PERIOD" yaml:"default_lock_period"`
	TickInterval      time.Duration `envconfig:"RELEVANCE_TICK_INTERVAL" yaml:"tick_interval"`
}

// JudgmentConfig holds judgment source settings.
type JudgmentConfig struct {
	CacheType      string        `envconfig:"RELEVANCE_JUDGMENT_CACHE_TYPE" yaml:"cache_type"` // memory, redis
	RedisURL       string        `envconfig:"RELEVANCE_JUDGMENT_REDIS_URL" yaml:"redis_url"`
	CacheTTL       time.Duration `envconfig:"RELEVANCE_JUDGMENT_CACHE_TTL" yaml:"cache_ttl"`
	UBIEventsPath  string        `envconfig:"RELEVANCE_UBI_EVENTS_PATH" yaml:"ubi_events_path"`
	MaxRank        int           `envconfig:"RELEVANCE_CLICK_MODEL_MAX_RANK" yaml:"max_rank"`
	RoundingDigits int           `envconfig:"RELEVANCE_CLICK_MODEL_ROUNDING_DIGITS" yaml:"rounding_digits"`
}

// HybridConfig defines the parameter space explored by the hybrid optimizer.
type HybridConfig struct {
	Normalizations []string `envconfig:"RELEVANCE_HYBRID_NORMALIZATIONS" yaml:"normalizations"`
	Combinations   []string `envconfig:"RELEVANCE_HYBRID_COMBINATIONS" yaml:"combinations"`
	WeightStep     float64  `envconfig:"RELEVANCE_HYBRID_WEIGHT_STEP" yaml:"weight_step"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RELEVANCE_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RELEVANCE_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 50061
	cfg.MetricsPort = 9091

	cfg.Storage = StorageConfig{
		Type:     "memory",
		Path:     "./data",
		RedisURL: "redis://localhost:6379/0",
		Prefix:   "relevance:doc:",
	}

	cfg.Lock = LockConfig{
		Type:     "memory",
		RedisURL: "redis://localhost:6379/0",
		Prefix:   "relevance:lock:",
	}

	cfg.Search = SearchConfig{
		Engine:            "http",
		URL:               "http://localhost:9200",
		Timeout:           30 * time.Second,
		RateLimit:         0,
		Burst:             10,
		BreakerEnabled:    true,
		BreakerRatio:      0.6,
		BreakerOpenPeriod: 30 * time.Second,
	}

	cfg.Qdrant = QdrantConfig{
		Host:             "localhost",
		Port:             6334,
		CollectionPrefix: "",
		Timeout:          30 * time.Second,
	}

	cfg.Bus = BusConfig{
		Type:         "memory",
		KafkaGroup:   "search-relevance",
		EventLogPath: "./data/events.jsonl",
	}

	cfg.Runner = RunnerConfig{
		Enabled:           true,
		Workers:           16,
		MaxQuerySetSize:   1000,
		DefaultLockPeriod: 20 * time.Second,
		TickInterval:      time.Second,
	}

	cfg.Judgment = JudgmentConfig{
		CacheType:      "memory",
		RedisURL:       "redis://localhost:6379/0",
		CacheTTL:       24 * time.Hour,
		MaxRank:        20,
		RoundingDigits: 3,
	}

	cfg.Hybrid = HybridConfig{
		Normalizations: []string{"min_max", "l2"},
		Combinations:   []string{"arithmetic_mean", "geometric_mean", "harmonic_mean"},
		WeightStep:     0.1,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, "metrics_port must be between 0 and 65535")
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		errs = append(errs, "metrics_port must differ from port")
	}

	validStorage := map[string]bool{"memory": true, "file": true, "badger": true, "redis": true}
	if !validStorage[c.Storage.Type] {
		errs = append(errs, fmt.Sprintf("invalid storage type: %s (must be memory, file, badger, or redis)", c.Storage.Type))
	}
	if (c.Storage.Type == "file" || c.Storage.Type == "badger") && c.Storage.Path == "" {
		errs = append(errs, "storage path is required for file and badger storage")
	}

	validLocks := map[string]bool{"memory": true, "redis": true}
	if !validLocks[c.Lock.Type] {
		errs = append(errs, fmt.Sprintf("invalid lock type: %s (must be memory or redis)", c.Lock.Type))
	}

	validEngines := map[string]bool{"http": true, "qdrant": true}
	if !validEngines[c.Search.Engine] {
		errs = append(errs, fmt.Sprintf("invalid search engine: %s (must be http or qdrant)", c.Search.Engine))
	}
	if c.Search.Engine == "http" && c.Search.URL == "" {
		errs = append(errs, "search url is required for the http engine")
	}
	if c.Search.RateLimit < 0 {
		errs = append(errs, "search rate_limit cannot be negative")
	}
	if c.Search.BreakerRatio <= 0 || c.Search.BreakerRatio > 1 {
		errs = append(errs, "search breaker_ratio must be in (0, 1]")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required for the kafka bus")
	}

	if c.Runner.Workers < 1 {
		errs = append(errs, "runner workers must be positive")
	}
	if c.Runner.MaxQuerySetSize < 1 {
		errs = append(errs, "max_query_set_size must be positive")
	}

	validCaches := map[string]bool{"memory": true, "redis": true}
	if !validCaches[c.Judgment.CacheType] {
		errs = append(errs, fmt.Sprintf("invalid judgment cache type: %s (must be memory or redis)", c.Judgment.CacheType))
	}
	if c.Judgment.MaxRank < 1 {
		errs = append(errs, "click model max_rank must be positive")
	}
	if c.Judgment.RoundingDigits < 0 || c.Judgment.RoundingDigits > 10 {
		errs = append(errs, "click model rounding_digits must be between 0 and 10")
	}

	if len(c.Hybrid.Normalizations) == 0 || len(c.Hybrid.Combinations) == 0 {
		errs = append(errs, "hybrid normalizations and combinations cannot be empty")
	}
	if c.Hybrid.WeightStep <= 0 || c.Hybrid.WeightStep > 1 {
		errs = append(errs, "hybrid weight_step must be in (0, 1]")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// GRPCAddr returns the address the health endpoint listens on.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsAddr returns the address the metrics endpoint listens on.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	GeoCacheMemory = "memory"
	GeoCacheRedis  = "redis"

	FallbackLocation = "location"
	FallbackNone     = "none"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	Firestore     FirestoreConfig     `yaml:"firestore"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Geocoding     GeocodingConfig     `yaml:"geocoding"`
	Storage       StorageConfig       `yaml:"storage"`
	Search        SearchConfig        `yaml:"search"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	APITokens       []string      `yaml:"api_tokens"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	// Upper bound on rows returned by listing queries that are not paginated
	// by the caller (unified "all" mode).
	ListingLimit int `yaml:"listing_limit"`
}

type RedisConfig struct {
	Addresses    []string       `yaml:"addresses"`
	Password     string         `yaml:"password"`
	DB           int            `yaml:"db"`
	PoolSize     int            `yaml:"pool_size"`
	MinIdleConns int            `yaml:"min_idle_conns"`
	DialTimeout  time.Duration  `yaml:"dial_timeout"`
	ReadTimeout  time.Duration  `yaml:"read_timeout"`
	WriteTimeout time.Duration  `yaml:"write_timeout"`
	TTL          CacheTTLConfig `yaml:"ttl"`
}

type CacheTTLConfig struct {
	TraditionalResults time.Duration `yaml:"traditional_results"`
	StaleFallback      time.Duration `yaml:"stale_fallback"`
}

type ElasticsearchConfig struct {
	Addresses         []string      `yaml:"addresses"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	PropertyIndex     string        `yaml:"property_index"`
	BulkSize          int           `yaml:"bulk_size"`
	BulkFlushInterval time.Duration `yaml:"bulk_flush_interval"`
}

type ClickHouseConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

type FirestoreConfig struct {
	ProjectID       string        `yaml:"project_id"`
	CredentialsFile string        `yaml:"credentials_file"`
	AuditCollection string        `yaml:"audit_collection"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	TopicChanges  string        `yaml:"topic_changes"`
	TopicDLQ      string        `yaml:"topic_dlq"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
}

type GeminiConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type GeocodingConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CacheBackend      string        `yaml:"cache_backend"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

type StorageConfig struct {
	Bucket          string        `yaml:"bucket"`
	CredentialsJSON string        `yaml:"credentials_json"`
	SignedURLTTL    time.Duration `yaml:"signed_url_ttl"`
	Timeout         time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	DefaultPageSize      int                  `yaml:"default_page_size"`
	MaxPageSize          int                  `yaml:"max_page_size"`
	LeaseDefaultPageSize int                  `yaml:"lease_default_page_size"`
	ExtractionFallback   string               `yaml:"extraction_fallback"`
	SigningConcurrency   int                  `yaml:"signing_concurrency"`
	CircuitBreaker       CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry                RetryConfig          `yaml:"retry"`
	SlowQuery            SlowQueryConfig      `yaml:"slow_query"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

type SlowQueryConfig struct {
	WarningThreshold  time.Duration `yaml:"warning_threshold"`
	CriticalThreshold time.Duration `yaml:"critical_threshold"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	ServiceName string `yaml:"service_name"`
}

// Load reads an optional .env file next to the process, then the YAML config at
// path. Environment references inside the YAML are expanded before parsing.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxConcurrent:   500,
		},
		Postgres: PostgresConfig{
			Schema:          "api",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    5 * time.Second,
			ListingLimit:    500,
		},
		Redis: RedisConfig{
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			TTL: CacheTTLConfig{
				TraditionalResults: 1 * time.Minute,
				StaleFallback:      1 * time.Hour,
			},
		},
		Elasticsearch: ElasticsearchConfig{
			MaxRetries:        3,
			RequestTimeout:    2 * time.Second,
			PropertyIndex:     "properties",
			BulkSize:          500,
			BulkFlushInterval: 5 * time.Second,
		},
		ClickHouse: ClickHouseConfig{
			Database:     "search_analytics",
			DialTimeout:  5 * time.Second,
			QueryTimeout: 2 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Firestore: FirestoreConfig{
			AuditCollection: "audit_trail",
			RequestTimeout:  2 * time.Second,
		},
		Kafka: KafkaConfig{
			TopicChanges:  "properties.changes",
			TopicDLQ:      "properties.changes.dlq",
			ConsumerGroup: "property-indexer",
			BatchSize:     100,
			BatchTimeout:  1 * time.Second,
			MaxRetries:    3,
		},
		Gemini: GeminiConfig{
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			Model:             "gemini-2.5-flash",
			EmbeddingModel:    "text-embedding-004",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Geocoding: GeocodingConfig{
			BaseURL:           "https://maps.googleapis.com/maps/api/geocode/json",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 25,
			Burst:             50,
			CacheBackend:      GeoCacheMemory,
			CacheTTL:          7 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			SignedURLTTL: 1 * time.Hour,
			Timeout:      5 * time.Second,
		},
		Search: SearchConfig{
			DefaultPageSize:      9,
			MaxPageSize:          100,
			LeaseDefaultPageSize: 20,
			ExtractionFallback:   FallbackLocation,
			SigningConcurrency:   8,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      5,
				Interval:         30 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
			Retry: RetryConfig{
				MaxAttempts: 2,
				InitialWait: 100 * time.Millisecond,
				MaxWait:     1 * time.Second,
				Multiplier:  2.0,
			},
			SlowQuery: SlowQueryConfig{
				WarningThreshold:  3 * time.Second,
				CriticalThreshold: 8 * time.Second,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			ServiceName: "property-search",
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn required")
	}
	if !hasToken(c.Server.APITokens) {
		return fmt.Errorf("at least one non-empty server api token required")
	}
	switch c.Geocoding.CacheBackend {
	case GeoCacheMemory:
	case GeoCacheRedis:
		if len(c.Redis.Addresses) == 0 {
			return fmt.Errorf("redis geocode cache requires at least one redis address")
		}
	default:
		return fmt.Errorf("unknown geocode cache backend: %q", c.Geocoding.CacheBackend)
	}
	if c.Geocoding.CacheTTL <= 0 {
		return fmt.Errorf("geocode cache ttl must be positive")
	}
	switch c.Search.ExtractionFallback {
	case FallbackLocation, FallbackNone:
	default:
		return fmt.Errorf("unknown extraction fallback policy: %q", c.Search.ExtractionFallback)
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.LeaseDefaultPageSize <= 0 {
		return fmt.Errorf("default page size must be positive")
	}
	if c.Search.MaxPageSize <= 0 || c.Search.MaxPageSize > 1000 {
		return fmt.Errorf("max page size must be between 1 and 1000")
	}
	if c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("signed url ttl must be positive")
	}
	return nil
}

func hasToken(tokens []string) bool {
	for _, t := range tokens {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

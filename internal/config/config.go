package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ProvidersConfig holds upstream indexing provider configuration
type ProvidersConfig struct {
	OpenSeaURL    string `mapstructure:"opensea_url"`
	OpenSeaAPIKey string `mapstructure:"opensea_api_key"`
	AlchemyURL    string `mapstructure:"alchemy_url"`
	AlchemyAPIKey string `mapstructure:"alchemy_api_key"`
}

// RateLimiterConfig holds the adaptive rate limiter tuning knobs
type RateLimiterConfig struct {
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	MaxDelay           time.Duration `mapstructure:"max_delay"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BackoffMultiplier  float64       `mapstructure:"backoff_multiplier"`
	DecreaseFactor     float64       `mapstructure:"decrease_factor"`
	SuccessThreshold   int           `mapstructure:"success_threshold"`
	ResponseWindowSize int           `mapstructure:"response_window_size"`
	BatchSize          int           `mapstructure:"batch_size"`

	// Cross-instance pressure coupling
	GlobalHitThreshold      int           `mapstructure:"global_hit_threshold"`
	GlobalPenaltyMultiplier float64       `mapstructure:"global_penalty_multiplier"`
	GlobalWindow            time.Duration `mapstructure:"global_window"`
}

// PaginationConfig holds the pagination orchestrator tuning knobs
type PaginationConfig struct {
	DefaultPageSize          int           `mapstructure:"default_page_size"`
	FallbackPageSizes        []int         `mapstructure:"fallback_page_sizes"`
	MaxPages                 int           `mapstructure:"max_pages"`
	MaxConsecutiveEmptyPages int           `mapstructure:"max_consecutive_empty_pages"`
	MaxConsecutiveFailures   int           `mapstructure:"max_consecutive_failures"`
	InterPageDelay           time.Duration `mapstructure:"inter_page_delay"`
	BaseBackoff              time.Duration `mapstructure:"base_backoff"`
}

// NATSConfig holds NATS JetStream configuration for import announcements
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// IngestConfig holds configuration for the ingestd worker
type IngestConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Pagination  PaginationConfig  `mapstructure:"pagination"`
	NATS        NATSConfig        `mapstructure:"nats"`

	// Wallets to ingest on startup
	Wallets []string `mapstructure:"wallets"`
	// QueueBatchLimit bounds how many pending entries one processing pass pulls
	QueueBatchLimit int `mapstructure:"queue_batch_limit"`
	// HTTPTimeout applies to all outbound provider calls
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// LoadIngestConfig loads configuration for the ingestd worker
func LoadIngestConfig(configFile string, envPath string) (*IngestConfig, error) {
	v := configureViper("ingestd", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("providers.opensea_url", "https://api.opensea.io/api/v2")
	v.SetDefault("providers.alchemy_url", "https://eth-mainnet.g.alchemy.com/nft/v3")
	v.SetDefault("rate_limiter.base_delay", "250ms")
	v.SetDefault("rate_limiter.max_delay", "30s")
	v.SetDefault("rate_limiter.max_retries", 5)
	v.SetDefault("rate_limiter.backoff_multiplier", 2.0)
	v.SetDefault("rate_limiter.decrease_factor", 0.75)
	v.SetDefault("rate_limiter.success_threshold", 10)
	v.SetDefault("rate_limiter.response_window_size", 20)
	v.SetDefault("rate_limiter.batch_size", 10)
	v.SetDefault("rate_limiter.global_hit_threshold", 10)
	v.SetDefault("rate_limiter.global_penalty_multiplier", 1.5)
	v.SetDefault("rate_limiter.global_window", "60s")
	v.SetDefault("pagination.default_page_size", 50)
	v.SetDefault("pagination.fallback_page_sizes", []int{25, 100})
	v.SetDefault("pagination.max_pages", 200)
	v.SetDefault("pagination.max_consecutive_empty_pages", 3)
	v.SetDefault("pagination.max_consecutive_failures", 3)
	v.SetDefault("pagination.inter_page_delay", "300ms")
	v.SetDefault("pagination.base_backoff", "1s")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "CATALOG_IMPORTS")
	v.SetDefault("nats.subject_prefix", "catalog.imports")
	v.SetDefault("queue_batch_limit", 100)
	v.SetDefault("http_timeout", "30s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config IngestConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// configureViper builds a viper instance with env layering for a service
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	loadEnv(envPath, service)

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("config/")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit binds so nested keys resolve from the environment even when no
	// config file is present
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		"providers.opensea_url",
		"providers.opensea_api_key",
		"providers.alchemy_url",
		"providers.alchemy_api_key",
		"rate_limiter.base_delay",
		"rate_limiter.max_delay",
		"rate_limiter.max_retries",
		"rate_limiter.backoff_multiplier",
		"rate_limiter.decrease_factor",
		"rate_limiter.success_threshold",
		"rate_limiter.response_window_size",
		"rate_limiter.batch_size",
		"rate_limiter.global_hit_threshold",
		"rate_limiter.global_penalty_multiplier",
		"rate_limiter.global_window",
		"pagination.default_page_size",
		"pagination.fallback_page_sizes",
		"pagination.max_pages",
		"pagination.max_consecutive_empty_pages",
		"pagination.max_consecutive_failures",
		"pagination.inter_page_delay",
		"pagination.base_backoff",
		"nats.url",
		"nats.stream_name",
		"nats.subject_prefix",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"wallets",
		"queue_batch_limit",
		"http_timeout",
	}
	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}

	return v
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate)
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/search"
)

// Validation modes for aggregation input
const (
	ValidationLenient = "lenient" // query or keywords
	ValidationStrict  = "strict"  // query and keywords
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Auth      AuthConfig
	Search    SearchConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowOrigins    []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// DSN returns the libpq-style connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode, d.MaxConns, d.MinConns,
	)
}

// RedisConfig holds Redis configuration for the upstream page cache
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PageTTL  time.Duration
}

// QueueConfig holds message queue configuration for usage events
type QueueConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
	Exchange string
}

// AuthConfig holds token and identity provider configuration
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	GoogleClientID string
	GoogleJWKSURL  string
}

// SearchConfig holds upstream search and aggregation configuration
type SearchConfig struct {
	BaseURL            string
	APIKey             string
	EngineID           string
	PageSize           int
	PageLimit          int
	KeywordConcurrency int
	Timeout            time.Duration
	Validation         string
}

// RateLimitConfig holds per-account request rate limits
type RateLimitConfig struct {
	RPS   int
	Burst int
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Search.PageSize < 1 || c.Search.PageSize > search.MaxPageSize {
		return fmt.Errorf("search.pageSize must be between 1 and %d, got %d", search.MaxPageSize, c.Search.PageSize)
	}
	if c.Search.PageLimit < 1 {
		return fmt.Errorf("search.pageLimit must be positive, got %d", c.Search.PageLimit)
	}
	if c.Search.KeywordConcurrency < 1 {
		return fmt.Errorf("search.keywordConcurrency must be positive, got %d", c.Search.KeywordConcurrency)
	}
	switch c.Search.Validation {
	case ValidationLenient, ValidationStrict:
	default:
		return fmt.Errorf("search.validation must be %q or %q, got %q", ValidationLenient, ValidationStrict, c.Search.Validation)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret must be set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "60s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.allowOrigins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "fetscr")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)
	v.SetDefault("database.autoMigrate", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pageTTL", "6h")

	// Queue defaults
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")
	v.SetDefault("queue.exchange", "fetscr")

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenTTL", "168h")
	v.SetDefault("auth.googleClientID", "")
	v.SetDefault("auth.googleJWKSURL", "https://www.googleapis.com/oauth2/v3/certs")

	// Search defaults
	v.SetDefault("search.baseURL", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.apiKey", "")
	v.SetDefault("search.engineID", "")
	v.SetDefault("search.pageSize", 10)
	v.SetDefault("search.pageLimit", 5)
	v.SetDefault("search.keywordConcurrency", 4)
	v.SetDefault("search.timeout", "15s")
	v.SetDefault("search.validation", ValidationLenient)

	// Rate limit defaults
	v.SetDefault("rateLimit.rps", 5)
	v.SetDefault("rateLimit.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "fetscr-api")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
}

package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendMap    = "map"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Auth          AuthConfig
	Providers     ProvidersConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// StoreConfig selects where tenants and users are persisted
type StoreConfig struct {
	Backend    string // postgres or memory
	InitSchema bool
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds the Redis connection used by the redis cache backend
type RedisConfig struct {
	URL string
}

// CacheConfig holds per-tenant cache configuration
type CacheConfig struct {
	Backend    string // memory, redis, or map (test environment only)
	MaxEntries int
	SecretTTL  time.Duration
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	ManagementPath      string
	ProtectedPrefix     string
	SessionTimeout      time.Duration
	CredentialSeparator string
	AdminAPIKey         string
	IssueRateLimit      float64 // requests per second per client, 0 disables
	IssueRateBurst      int
}

// ProvidersConfig holds identity provider configuration
type ProvidersConfig struct {
	Timeout  time.Duration
	Facebook ProfileProviderConfig
	Google   ProfileProviderConfig
	GitHub   ProfileProviderConfig
	LinkedIn ProfileProviderConfig
	Twitter  TwitterConfig
}

// ProfileProviderConfig holds the profile endpoint of a bearer-token provider
type ProfileProviderConfig struct {
	Enabled    bool
	ProfileURL string
}

// TwitterConfig holds OAuth 1.0a consumer credentials
type TwitterConfig struct {
	Enabled        bool
	ConsumerKey    string
	ConsumerSecret string
	VerifyURL      string
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
			InitSchema: getEnvAsBool("DB_INIT_SCHEMA", true),
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory)),
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
			SecretTTL:  getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			ManagementPath:      getEnv("AUTH_MANAGEMENT_PATH", "/jwt_auth"),
			ProtectedPrefix:     getEnv("AUTH_PROTECTED_PREFIX", "/api/"),
			SessionTimeout:      getEnvAsDuration("SESSION_TIMEOUT", 24*time.Hour),
			CredentialSeparator: getEnv("CREDENTIAL_SEPARATOR", ":"),
			AdminAPIKey:         getEnv("ADMIN_API_KEY", ""),
			IssueRateLimit:      getEnvAsFloat("ISSUE_RATE_LIMIT", 5),
			IssueRateBurst:      getEnvAsInt("ISSUE_RATE_BURST", 10),
		},
		Providers: ProvidersConfig{
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
			Facebook: ProfileProviderConfig{
				Enabled:    getEnvAsBool("FACEBOOK_ENABLED", true),
				ProfileURL: getEnv("FACEBOOK_PROFILE_URL", "https://graph.facebook.com/me?fields=id,name,email,picture.width(400).type(square).height(400)"),
			},
			Google: ProfileProviderConfig{
				Enabled:    getEnvAsBool("GOOGLE_ENABLED", true),
				ProfileURL: getEnv("GOOGLE_PROFILE_URL", "https://www.googleapis.com/oauth2/v3/userinfo"),
			},
			GitHub: ProfileProviderConfig{
				Enabled:    getEnvAsBool("GITHUB_ENABLED", true),
				ProfileURL: getEnv("GITHUB_PROFILE_URL", "https://api.github.com/user"),
			},
			LinkedIn: ProfileProviderConfig{
				Enabled:    getEnvAsBool("LINKEDIN_ENABLED", true),
				ProfileURL: getEnv("LINKEDIN_PROFILE_URL", "https://api.linkedin.com/v2/userinfo"),
			},
			Twitter: TwitterConfig{
				ConsumerKey:    getEnv("TWITTER_CONSUMER_KEY", ""),
				ConsumerSecret: getEnv("TWITTER_CONSUMER_SECRET", ""),
				VerifyURL:      getEnv("TWITTER_VERIFY_URL", "https://api.twitter.com/1.1/account/verify_credentials.json"),
			},
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}
	cfg.Providers.Twitter.Enabled = cfg.Providers.Twitter.ConsumerKey != "" && cfg.Providers.Twitter.ConsumerSecret != ""

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendPostgres, "":
		// Database validation (DATABASE_URL or DB_* vars)
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case StoreBackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory store backend is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, "":
	case CacheBackendMap:
		// MapCache is not safe for concurrent use
		if !c.IsTest() {
			return fmt.Errorf("map cache backend is only allowed in the test environment")
		}
	case CacheBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if !strings.HasPrefix(c.Auth.ManagementPath, "/") {
		return fmt.Errorf("auth management path must start with /")
	}
	if c.Auth.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if c.Auth.CredentialSeparator == "" {
		return fmt.Errorf("credential separator is required")
	}
	if c.IsProduction() && c.Auth.AdminAPIKey == "" {
		return fmt.Errorf("admin API key is required in production")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsTest returns true when running under tests
func (c *Config) IsTest() bool {
	return c.Environment == "test"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "para"),
		Password:        getEnv("DB_PASSWORD", "para"),
		Database:        getEnv("DB_NAME", "para"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping blank items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageMemory   = "memory"
	StorageSurreal  = "surreal"
	StoragePostgres = "postgres"
)

// Session backends accepted by SESSION_BACKEND.
const (
	SessionCookie = "cookie"
	SessionRedis  = "redis"
)

// Provider exposes configuration to the rest of the application so that
// tests can substitute their own values.
type Provider interface {
	GetAppAddr() string
	GetAppBaseURL() string

	GetSessionSecret() string
	GetSessionName() string
	GetSessionMaxAge() int
	GetSessionBackend() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int

	GetStorageBackend() string
	GetDBURL() string
	GetDBUser() string
	GetDBPass() string
	GetDBNs() string
	GetDBDb() string
	GetPostgresURL() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration

	GetWSSendBuffer() int
	GetWSWriteTimeout() time.Duration

	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetTracingZipkinURL() string
}

// Config holds all configuration for the application.
type Config struct {
	AppAddr    string
	AppBaseURL string

	SessionSecret  string
	SessionName    string
	SessionMaxAge  int
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	StorageBackend   string
	DBUrl            string
	DBUser           string
	DBPass           string
	DBNs             string
	DBDb             string
	PostgresURL      string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration

	WSSendBuffer   int
	WSWriteTimeout time.Duration

	TracingEnabled     bool
	TracingServiceName string
	TracingZipkinURL   string
}

// New loads configuration from environment variables and exits the process
// when it is invalid.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// Load reads the configuration from the current environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppAddr:    getEnv("APP_ADDR", ":8080"),
		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:8080"),

		SessionSecret:  os.Getenv("SESSION_SECRET"),
		SessionName:    getEnv("SESSION_NAME", "chat.sid"),
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", SessionCookie)),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageMemory)),
		DBUrl:          os.Getenv("SURREAL_URL"),
		DBUser:         os.Getenv("SURREAL_USER"),
		DBPass:         os.Getenv("SURREAL_PASS"),
		DBNs:           os.Getenv("SURREAL_NS"),
		DBDb:           os.Getenv("SURREAL_DB"),
		PostgresURL:    os.Getenv("DATABASE_URL"),

		TracingServiceName: getEnv("PUBSUB_TRACING_SERVICE_NAME", "chatroom"),
		TracingZipkinURL:   getEnv("PUBSUB_TRACING_ZIPKIN_URL", "http://localhost:9411/api/v2/spans"),
	}

	var err error
	if cfg.SessionMaxAge, err = getInt("SESSION_MAX_AGE", 86400); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.WSSendBuffer, err = getInt("WS_SEND_BUFFER", 256); err != nil {
		return nil, err
	}
	if v := os.Getenv("PUBSUB_TRACING_ENABLED"); v != "" {
		if cfg.TracingEnabled, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid PUBSUB_TRACING_ENABLED %q: %w", v, err)
		}
	}
	if cfg.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.DBExecuteTimeout, err = getDuration("DB_EXECUTE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSWriteTimeout, err = getDuration("WS_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("required environment variable SESSION_SECRET is not set")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", c.SessionMaxAge)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}

	switch c.SessionBackend {
	case SessionCookie:
	case SessionRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("SESSION_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			return fmt.Errorf("required environment variables SURREAL_URL, SURREAL_NS, or SURREAL_DB are not set")
		}
	case StoragePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("required environment variable DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", key)
	}
	return d, nil
}

func (c *Config) GetAppAddr() string               { return c.AppAddr }
func (c *Config) GetAppBaseURL() string            { return c.AppBaseURL }
func (c *Config) GetSessionSecret() string         { return c.SessionSecret }
func (c *Config) GetSessionName() string           { return c.SessionName }
func (c *Config) GetSessionMaxAge() int            { return c.SessionMaxAge }
func (c *Config) GetSessionBackend() string        { return c.SessionBackend }
func (c *Config) GetRedisAddr() string             { return c.RedisAddr }
func (c *Config) GetRedisPassword() string         { return c.RedisPassword }
func (c *Config) GetRedisDB() int                  { return c.RedisDB }
func (c *Config) GetStorageBackend() string        { return c.StorageBackend }
func (c *Config) GetDBURL() string                 { return c.DBUrl }
func (c *Config) GetDBUser() string                { return c.DBUser }
func (c *Config) GetDBPass() string                { return c.DBPass }
func (c *Config) GetDBNs() string                  { return c.DBNs }
func (c *Config) GetDBDb() string                  { return c.DBDb }
func (c *Config) GetPostgresURL() string           { return c.PostgresURL }
func (c *Config) GetDBQueryTimeout() time.Duration { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration {
	return c.DBExecuteTimeout
}
func (c *Config) GetWSSendBuffer() int              { return c.WSSendBuffer }
func (c *Config) GetWSWriteTimeout() time.Duration { return c.WSWriteTimeout }
func (c *Config) GetTracingEnabled() bool          { return c.TracingEnabled }
func (c *Config) GetTracingServiceName() string    { return c.TracingServiceName }
func (c *Config) GetTracingZipkinURL() string      { return c.TracingZipkinURL }

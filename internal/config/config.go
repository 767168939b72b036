package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"taskapi/internal/ratelimit"
)

// Config holds application level configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	ServerPort       string        `toml:"server-port"`
	DBDriver         string        `toml:"db-driver"`
	DatabaseDSN      string        `toml:"database-dsn"`
	ResetDB          bool          `toml:"reset-db"`
	RedisAddr        string        `toml:"redis-addr"`
	RedisDB          int           `toml:"redis-db"`
	RedisPass        string        `toml:"redis-password"`
	JWTSecret        string        `toml:"jwt-secret"`
	TokenLifetime    time.Duration `toml:"-"`
	CacheTTL         time.Duration `toml:"-"`
	RateLimit        string        `toml:"rate-limit"`
	RateLimitStorage string        `toml:"rate-limit-storage"`
	LogLevel         string        `toml:"log-level"`
	LogFormat        string        `toml:"log-format"`
	SwaggerHost      string        `toml:"swagger-host"`
}

// fileConfig mirrors the TOML file; durations are given in seconds there.
type fileConfig struct {
	Config
	TokenLifetimeSeconds int `toml:"jwt-access-token-expires"`
	CacheTTLSeconds      int `toml:"cache-default-timeout"`
}

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	StorageMemory = "memory"
	StorageRedis  = "redis"
)

func defaults() *Config {
	return &Config{
		ServerPort:       "8080",
		DBDriver:         DriverMySQL,
		DatabaseDSN:      "user:password@tcp(localhost:3306)/tasks?charset=utf8mb4&parseTime=True&loc=UTC",
		RedisAddr:        "localhost:6379",
		JWTSecret:        "change-me",
		TokenLifetime:    time.Hour,
		CacheTTL:         5 * time.Minute,
		RateLimit:        "100/hour",
		RateLimitStorage: StorageMemory,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load builds Config from the file named by CONFIG_FILE (if any), then
// environment variables, falling back to sensible defaults.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file.
func LoadFrom(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	fc := fileConfig{Config: *cfg}
	meta, err := toml.Decode(string(data), &fc)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}

	*cfg = fc.Config
	if meta.IsDefined("jwt-access-token-expires") {
		cfg.TokenLifetime = time.Duration(fc.TokenLifetimeSeconds) * time.Second
	}
	if meta.IsDefined("cache-default-timeout") {
		cfg.CacheTTL = time.Duration(fc.CacheTTLSeconds) * time.Second
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", cfg.DBDriver))
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.ResetDB = getEnvBool("RESET_DB", cfg.ResetDB)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.RedisPass = getEnv("REDIS_PASSWORD", cfg.RedisPass)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenLifetime = getEnvSeconds("JWT_ACCESS_TOKEN_EXPIRES", cfg.TokenLifetime)
	cfg.CacheTTL = getEnvSeconds("CACHE_DEFAULT_TIMEOUT", cfg.CacheTTL)
	cfg.RateLimit = getEnv("RATELIMIT_DEFAULT", cfg.RateLimit)
	cfg.RateLimitStorage = strings.ToLower(getEnv("RATELIMIT_STORAGE", cfg.RateLimitStorage))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.SwaggerHost = getEnv("SWAGGER_HOST", cfg.SwaggerHost)
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenLifetime <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRES must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TIMEOUT must be positive")
	}
	if _, err := ratelimit.Parse(c.RateLimit); err != nil {
		return fmt.Errorf("RATELIMIT_DEFAULT: %w", err)
	}
	switch c.RateLimitStorage {
	case StorageMemory, StorageRedis:
	default:
		return fmt.Errorf("unsupported RATELIMIT_STORAGE %q", c.RateLimitStorage)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return def
}

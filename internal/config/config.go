package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port               string
	AuthToken          string
	DBURL              string
	MigrationsDir      string
	ReadTimeoutSecs    int
	WriteTimeoutSecs   int
	IdleTimeoutSecs    int
	DBMaxConns         int
	DBMinConns         int
	DBMaxIdleSecs      int
	DBMaxLifeSecs      int
	DBConnTimeoutSecs  int
	DBStatementCache   int
	LogLevel           string
	Environment        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CacheTTLSecs       int
	ReconcileCron      string
	UserDirURL         string
	UserDirAPIKey      string
	UserDirTimeoutSecs int
}

// Load reads configuration from environment variables, applying defaults and
// validation. A .env file in the working directory is honoured but never
// overrides variables that are already set.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AuthToken:          os.Getenv("AUTH_TOKEN"),
		DBURL:              os.Getenv("DB_URL"),
		MigrationsDir:      os.Getenv("DB_MIGRATIONS_DIR"),
		ReadTimeoutSecs:    getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:   getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:    getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:         getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:      getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:      getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:  getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:   getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Environment:        strings.ToLower(getEnv("ENVIRONMENT", "development")),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		CacheTTLSecs:       getEnvInt("CACHE_TTL_SECS", 300),
		ReconcileCron:      getEnv("RECONCILE_CRON", "0 3 * * *"),
		UserDirURL:         os.Getenv("USERDIR_URL"),
		UserDirAPIKey:      os.Getenv("USERDIR_API_KEY"),
		UserDirTimeoutSecs: getEnvInt("USERDIR_TIMEOUT_SECS", 5),
	}

	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.CacheTTLSecs <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL_SECS must be positive")
	}
	if cfg.ReconcileCron == "off" {
		cfg.ReconcileCron = ""
	}
	if cfg.ReconcileCron != "" {
		if _, err := cron.ParseStandard(cfg.ReconcileCron); err != nil {
			return Config{}, fmt.Errorf("RECONCILE_CRON is invalid: %w", err)
		}
	}
	if cfg.UserDirURL != "" && cfg.UserDirTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("USERDIR_TIMEOUT_SECS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Storage
	StorageDriver     string
	DatabaseURL       string
	SQLitePath        string
	MigrationsEnabled bool

	// Redis (optional, enables cross-process progress notifications)
	RedisURL string

	// JWT
	JWTSecret string

	// Catalog override; the embedded catalog is used when empty
	CatalogPath string

	// Write routes
	RateLimitPerMinute int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		StorageDriver:      strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", StorageDriverPostgres)),
		SQLitePath:         getEnvOrDefault("SQLITE_PATH", "./acadium.db"),
		MigrationsEnabled:  getEnvAsBoolOrDefault("MIGRATIONS_ENABLED", true),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		CatalogPath:        getEnvOrDefault("CATALOG_PATH", ""),
		RateLimitPerMinute: getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 120),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	case StorageDriverSQLite:
		cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", "")
	default:
		panic(fmt.Sprintf("unsupported STORAGE_DRIVER %q (want postgres or sqlite)", cfg.StorageDriver))
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

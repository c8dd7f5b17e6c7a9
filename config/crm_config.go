package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	DBMaxConns  int
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// Resolution
	GroupSize       int
	Pacing          time.Duration
	VariantLimit    int
	VariantMinScore float64
	DefaultCategory string
	ComputePageSize int

	// Rate limiting (POST /suggestions/compute, per client IP)
	ComputeRateLimit  int
	ComputeRateWindow time.Duration

	// Cache
	DomainCacheTTL time.Duration

	// Events
	EventStreamMaxLen int64

	// Schema
	AutoMigrate bool

	// CORS
	AllowedOrigins []string
}

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

func Load() (*Config, error) {
	env := getEnv("ENV", "development")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "crm"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Resolution
		GroupSize:       getEnvInt("RESOLUTION_GROUP_SIZE", 10),
		Pacing:          time.Duration(getEnvInt("RESOLUTION_PACING_MS", 100)) * time.Millisecond,
		VariantLimit:    getEnvInt("RESOLUTION_VARIANT_LIMIT", 5),
		VariantMinScore: getEnvFloat("RESOLUTION_VARIANT_MIN_SCORE", 30),
		DefaultCategory: getEnv("RESOLUTION_DEFAULT_CATEGORY", "Corporate"),
		ComputePageSize: getEnvInt("RESOLUTION_COMPUTE_PAGE_SIZE", 100),

		// Rate limiting
		ComputeRateLimit:  getEnvInt("COMPUTE_RATE_LIMIT", 10),
		ComputeRateWindow: time.Duration(getEnvInt("COMPUTE_RATE_WINDOW_SEC", 60)) * time.Second,

		// Cache
		DomainCacheTTL: time.Duration(getEnvInt("DOMAIN_CACHE_TTL_MIN", 10)) * time.Minute,

		// Events
		EventStreamMaxLen: int64(getEnvInt("EVENT_STREAM_MAX_LEN", 10000)),

		// Schema
		AutoMigrate: getEnvBool("SCHEMA_AUTO_MIGRATE", env == "development"),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

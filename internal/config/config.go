package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/railconnect/route-finder/pkg/railtime"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration for admin endpoints
	JWT JWTConfig

	// Precomputed route cache configuration
	Cache CacheConfig

	// Route search configuration
	Search SearchConfig

	// Cache precomputation configuration
	Precompute PrecomputeConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // pgx, postgres or sqlite
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
	Issuer string
}

// CacheConfig holds the precomputed route cache configuration
type CacheConfig struct {
	Enabled       bool
	CanonicalDate time.Time // Date every cached timestamp is anchored to
	Timeout       time.Duration
}

// SearchConfig holds live route search configuration
type SearchConfig struct {
	TimetableTimeout time.Duration
	MemoSize         int
	MemoTTL          time.Duration // 0 disables expiry
	MaxCandidates    int           // Cap on two-transfer paths examined
}

// PrecomputeConfig holds cache precomputation configuration
type PrecomputeConfig struct {
	Enabled     bool
	Schedule    string // Cron spec with seconds
	TopStations int
	TopK        int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// DefaultCanonicalDate is the anchor date of precomputed cache entries
const DefaultCanonicalDate = "2024-01-01"

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	canonical, err := railtime.ParseDate(getEnv("CACHE_CANONICAL_DATE", DefaultCanonicalDate))
	if err != nil {
		return nil, fmt.Errorf("CACHE_CANONICAL_DATE: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "pgx"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "railconnect"),
		},
		Cache: CacheConfig{
			Enabled:       getEnvAsBool("CACHE_ENABLED", true),
			CanonicalDate: canonical,
			Timeout:       time.Duration(getEnvAsInt("CACHE_TIMEOUT_MS", 500)) * time.Millisecond,
		},
		Search: SearchConfig{
			TimetableTimeout: time.Duration(getEnvAsInt("TIMETABLE_TIMEOUT_MS", 10000)) * time.Millisecond,
			MemoSize:         getEnvAsInt("SEARCH_MEMO_SIZE", 500),
			MemoTTL:          time.Duration(getEnvAsInt("SEARCH_MEMO_TTL_SECONDS", 0)) * time.Second,
			MaxCandidates:    getEnvAsInt("SEARCH_MAX_CANDIDATES", 5000),
		},
		Precompute: PrecomputeConfig{
			Enabled:     getEnvAsBool("PRECOMPUTE_ENABLED", false),
			Schedule:    getEnv("PRECOMPUTE_SCHEDULE", "0 0 3 * * *"), // 3:00 AM daily
			TopStations: getEnvAsInt("PRECOMPUTE_TOP_STATIONS", 50),
			TopK:        getEnvAsInt("PRECOMPUTE_TOP_K", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Database.Driver {
	case "pgx", "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'pgx', 'postgres' or 'sqlite')", c.Database.Driver)
	}

	if c.Search.MemoSize < 0 {
		return fmt.Errorf("SEARCH_MEMO_SIZE cannot be negative")
	}

	if c.Search.MaxCandidates <= 0 {
		return fmt.Errorf("SEARCH_MAX_CANDIDATES must be positive")
	}

	if c.Search.TimetableTimeout <= 0 || c.Cache.Timeout <= 0 {
		return fmt.Errorf("TIMETABLE_TIMEOUT_MS and CACHE_TIMEOUT_MS must be positive")
	}

	// Validate precompute configuration only when the scheduler is on
	if c.Precompute.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Precompute.Schedule); err != nil {
			return fmt.Errorf("invalid PRECOMPUTE_SCHEDULE %q: %w", c.Precompute.Schedule, err)
		}
		if c.Precompute.TopStations < 2 || c.Precompute.TopK < 1 {
			return fmt.Errorf("PRECOMPUTE_TOP_STATIONS must be at least 2 and PRECOMPUTE_TOP_K at least 1")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
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
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

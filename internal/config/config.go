package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds runtime settings read from the environment
type Config struct {
	Env              string
	Port             string
	Database         Database
	JWTSecret        string
	AuthRequired     bool
	AllowedOrigins   []string
	LowStockInterval time.Duration
	RateLimit        int // requests per minute per client, 0 disables
	LogLevel         zerolog.Level
}

type Database struct {
	Driver string
	DSN    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(getEnvAsString("LOG_LEVEL", "info")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	if getEnvAsBool("DEBUG", false) {
		level = zerolog.DebugLevel
	}

	return Config{
		Env:  getEnvAsString("ENV", "development"),
		Port: getEnvAsString("PORT", "8080"),
		Database: Database{
			Driver: strings.ToLower(getEnvAsString("DB_DRIVER", DriverSQLite)),
			DSN:    getEnvAsString("DB_DSN", "restaurant.db"),
		},
		JWTSecret:        getEnvAsString("JWT_SECRET", "bistro-secret-key"),
		AuthRequired:     getEnvAsBool("AUTH_REQUIRED", false),
		AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LowStockInterval: getEnvAsDuration("LOW_STOCK_INTERVAL", 5*time.Minute),
		RateLimit:        getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
		LogLevel:         level,
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvAsString(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil && value >= 0 {
			return value
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}

// getEnvAsDuration accepts Go duration strings ("90s", "5m")
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
			return value
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string) []string {
	if valueStr, exists := os.LookupEnv(key); exists {
		parts := strings.Split(valueStr, ",")
		result := make([]string, 0, len(parts))
		for _, v := range parts {
			trimmed := strings.TrimSpace(v)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

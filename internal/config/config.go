package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	AI        AIConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	AccessSecret      string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AIConfig holds the upstream text-generation provider configuration
type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	IdleTimeout time.Duration
}

// RateLimitConfig holds the fixed-window rate limit settings.
// Generation limits are keyed per user, request limits per client IP.
type RateLimitConfig struct {
	GenerationLimit  int
	GenerationWindow time.Duration
	RequestLimit     int
	RequestWindow    time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ai_manager"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			AccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
			AccessTokenExpiry: getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:            getEnv("JWT_ISSUER", "ai-manager"),
		},
		AI: AIConfig{
			BaseURL:     getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("AI_API_KEY", ""),
			Model:       getEnv("AI_MODEL", "gpt-4o-mini"),
			IdleTimeout: getDurationEnv("AI_IDLE_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			GenerationLimit:  getIntEnv("RATE_LIMIT_GENERATION_MAX", 50),
			GenerationWindow: getDurationEnv("RATE_LIMIT_GENERATION_WINDOW", time.Hour),
			RequestLimit:     getIntEnv("RATE_LIMIT_REQUEST_MAX", 100),
			RequestWindow:    getDurationEnv("RATE_LIMIT_REQUEST_WINDOW", time.Minute),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Accepts Go duration strings ("30s", "1h") or a bare number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Archive  ArchiveConfig
	Redis    RedisConfig
}

// RedisConfig holds the optional Redis connection used by the health
// surface. Empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
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
	AccessSecret       string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthConfig holds account lifecycle knobs
type AuthConfig struct {
	// LockThreshold is the consecutive failed logins that disable an account
	LockThreshold int
	// VerboseLoginErrors enables per-cause login failure messages with
	// attempts remaining. The hardened default reports one unified message.
	VerboseLoginErrors bool
	// BootstrapAdmin is the username that registers with the admin role
	BootstrapAdmin string
	// LoginRateLimit caps login and recovery requests per client IP per window
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// ArchiveConfig holds S3 snapshot archival configuration. Archival is
// disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Enabled reports whether snapshot archival is configured.
func (a *ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getSliceEnv("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "intelplatform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			AccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getDurationEnv("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			Issuer:             getEnv("JWT_ISSUER", "intelplatform"),
		},
		Auth: AuthConfig{
			LockThreshold:      getIntEnv("AUTH_LOCK_THRESHOLD", 3),
			VerboseLoginErrors: getBoolEnv("AUTH_VERBOSE_LOGIN_ERRORS", false),
			BootstrapAdmin:     getEnv("AUTH_BOOTSTRAP_ADMIN", "admin"),
			LoginRateLimit:     getIntEnv("AUTH_LOGIN_RATE_LIMIT", 30),
			LoginRateWindow:    getDurationEnv("AUTH_LOGIN_RATE_WINDOW", 15*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Archive: ArchiveConfig{
			Bucket:       getEnv("ARCHIVE_S3_BUCKET", ""),
			Region:       getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:     getEnv("ARCHIVE_S3_ENDPOINT", ""),
			AccessKey:    getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("ARCHIVE_S3_SECRET_KEY", ""),
			UsePathStyle: getBoolEnv("ARCHIVE_S3_PATH_STYLE", false),
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

// getSliceEnv returns a comma-separated environment variable as a slice
func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Plain integers are read as minutes; otherwise Go duration syntax applies.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getIntEnv returns int from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns bool from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

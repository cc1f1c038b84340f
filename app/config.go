package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nadajinny/GROO/internal/ratelimit"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Config struct {
	AppEnv string
	Port   string

	Database      DatabaseConfig
	RunMigrations bool

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	RateLimit ratelimit.Config
	// RateLimitBackend selects "memory" (per process) or "redis" (shared by
	// every instance pointing at REDIS_URL).
	RateLimitBackend string
	TrustProxy       bool

	RedisURL             string
	RevocationFailClosed bool

	CORSAllowedOrigins []string

	GoogleClientID    string
	FirebaseProjectID string
	SocialMergePolicy string

	SentryDSN string

	AdminEmail    string
	AdminPassword string
}

// LoadConfig reads the process environment. Callers wanting .env support load
// it first.
func LoadConfig() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	backend := strings.ToLower(envOrDefault("RATE_LIMIT_BACKEND", RateLimitBackendMemory))
	if backend != RateLimitBackendMemory && backend != RateLimitBackendRedis {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_BACKEND: %s", backend)
	}

	return Config{
		AppEnv: envOrDefault("APP_ENV", "development"),
		Port:   envOrDefault("PORT", "8080"),
		Database: DatabaseConfig{
			URL:             databaseURL,
			MaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			ConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		},
		RunMigrations: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		JWTSecret:     jwtSecret,
		AccessTTL:     envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 30),
		RefreshTTL:    envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 7),
		RateLimit: ratelimit.Config{
			Enabled:     EnvBoolOrDefault("RATE_LIMIT_ENABLED", true),
			Window:      envSecondsOrDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
			MaxRequests: envIntOrDefault("RATE_LIMIT_MAX_REQUESTS", ratelimit.DefaultMaxRequests),
			MaxKeys:     envIntOrDefault("RATE_LIMIT_MAX_KEYS", ratelimit.DefaultMaxKeys),
		},
		RateLimitBackend:     backend,
		TrustProxy:           EnvBoolOrDefault("RATE_LIMIT_TRUST_PROXY", false),
		RedisURL:             strings.TrimSpace(os.Getenv("REDIS_URL")),
		RevocationFailClosed: EnvBoolOrDefault("REVOCATION_FAIL_CLOSED", false),
		CORSAllowedOrigins:   splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		GoogleClientID:       strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		FirebaseProjectID:    strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID")),
		SocialMergePolicy:    strings.ToLower(envOrDefault("SOCIAL_MERGE_POLICY", "email")),
		SentryDSN:            strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		AdminEmail:           strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
	}, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

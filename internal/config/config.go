package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort int
	BindAddr   string

	APIBaseURL string
	APITimeout time.Duration

	DatabasePath      string
	CredentialBackend string // sqlite, redis or memory
	RedisAddr         string
	RedisPrefix       string

	AllowedOrigins []string
	CSRFKey        string // signs the CSRF cookie; random per process when empty
	SignInPath     string
	LandingPath    string

	ToastDuration      time.Duration
	RevalidateSchedule string
	TeamCacheTTL       time.Duration

	LogLevel  string
	LogFormat string
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.ServerPort)
}

// Load loads configuration from an optional .env file and environment
// variables, falling back to defaults.
func Load() (*Config, error) {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	apiTimeout, err := time.ParseDuration(getEnv("API_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_TIMEOUT: %w", err)
	}

	toastDuration, err := time.ParseDuration(getEnv("TOAST_DURATION", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOAST_DURATION: %w", err)
	}

	cacheTTL, err := time.ParseDuration(getEnv("TEAM_CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TEAM_CACHE_TTL: %w", err)
	}

	backend := strings.ToLower(getEnv("CREDENTIAL_BACKEND", "sqlite"))
	switch backend {
	case "sqlite", "redis", "memory":
	default:
		return nil, fmt.Errorf("invalid CREDENTIAL_BACKEND %q", backend)
	}

	return &Config{
		ServerPort:         port,
		BindAddr:           getEnv("BIND_ADDR", "127.0.0.1"),
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8081/api"), "/"),
		APITimeout:         apiTimeout,
		DatabasePath:       getEnv("DATABASE_PATH", "./vs-recorder.db"),
		CredentialBackend:  backend,
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:        getEnv("REDIS_PREFIX", "vsr:"),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "chrome-extension://*,http://localhost:3000")),
		CSRFKey:            getEnv("CSRF_KEY", ""),
		SignInPath:         getEnv("SIGN_IN_PATH", "/login"),
		LandingPath:        getEnv("LANDING_PATH", "/dashboard"),
		ToastDuration:      toastDuration,
		RevalidateSchedule: getEnv("REVALIDATE_SCHEDULE", "*/5 * * * *"),
		TeamCacheTTL:       cacheTTL,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

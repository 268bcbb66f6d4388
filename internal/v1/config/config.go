package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	DatabaseURL string
	RedisURL    string

	// Optional variables with defaults
	Port             string
	UseRedisSessions bool
	GoEnv            string
	LogLevel         string
	DevelopmentMode  bool
	AllowedOrigins   string

	// Session store
	SessionTTL time.Duration

	// Game pacing
	GameRounds       int
	TurnDuration     time.Duration
	PollInterval     time.Duration
	TurnCooldown     time.Duration
	PubSubMaxRetries int
	LobbyTimeout     time.Duration
	WordlistPath     string

	// Rate Limits
	RateLimitApiGlobal string
	RateLimitApiAuth   string
	RateLimitApiRooms  string
	RateLimitWsIp      string

	// Tracing (enabled only when endpoint is set)
	OTLPEndpoint string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: DATABASE_URL (postgres DSN for the user store)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required")
	}

	// Required: REDIS_URL (shared cache and pub/sub broker)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		errors = append(errors, "REDIS_URL is required")
	} else if !strings.HasPrefix(cfg.RedisURL, "redis://") && !strings.HasPrefix(cfg.RedisURL, "rediss://") {
		errors = append(errors, fmt.Sprintf("REDIS_URL must start with 'redis://' or 'rediss://' (got '%s')", cfg.RedisURL))
	}

	// Optional: PORT (defaults to 8000)
	cfg.Port = getEnvOrDefault("PORT", "8000")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: USE_REDIS_SESSIONS (defaults to true; false keeps sessions in process memory)
	cfg.UseRedisSessions = true
	if raw, exists := os.LookupEnv("USE_REDIS_SESSIONS"); exists {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			errors = append(errors, fmt.Sprintf("USE_REDIS_SESSIONS must be a boolean (got '%s')", raw))
		} else {
			cfg.UseRedisSessions = parsed
		}
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Session lifetime (Redis-backed sessions only; memory sessions live until restart)
	cfg.SessionTTL = time.Duration(getEnvIntOrDefault("SESSION_TTL_HOURS", 24, &errors)) * time.Hour

	// Game pacing
	cfg.GameRounds = getEnvIntOrDefault("GAME_ROUNDS", 1, &errors)
	if cfg.GameRounds < 1 {
		errors = append(errors, fmt.Sprintf("GAME_ROUNDS must be at least 1 (got %d)", cfg.GameRounds))
	}
	cfg.TurnDuration = time.Duration(getEnvIntOrDefault("GAME_TURN_SECONDS", 60, &errors)) * time.Second
	cfg.PollInterval = time.Duration(getEnvIntOrDefault("GAME_POLL_INTERVAL_MS", 500, &errors)) * time.Millisecond
	cfg.TurnCooldown = time.Duration(getEnvIntOrDefault("GAME_TURN_COOLDOWN_MS", 2000, &errors)) * time.Millisecond
	cfg.PubSubMaxRetries = getEnvIntOrDefault("PUBSUB_MAX_RETRIES", 50, &errors)
	cfg.LobbyTimeout = time.Duration(getEnvIntOrDefault("LOBBY_TIMEOUT_MINUTES", 60, &errors)) * time.Minute
	cfg.WordlistPath = getEnvOrDefault("WORDLIST_PATH", "public/source.txt")

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitApiGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitApiAuth = getEnvOrDefault("RATE_LIMIT_API_AUTH", "20-M")
	cfg.RateLimitApiRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitWsIp = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"database_url", redactSecret(cfg.DatabaseURL),
		"redis_url", redactSecret(cfg.RedisURL),
		"port", cfg.Port,
		"use_redis_sessions", cfg.UseRedisSessions,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"game_rounds", cfg.GameRounds,
		"turn_duration", cfg.TurnDuration,
		"wordlist_path", cfg.WordlistPath,
		"rate_limit_api_global", cfg.RateLimitApiGlobal,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of the environment variable or a
// default; a non-numeric value is recorded in errs
func getEnvIntOrDefault(key string, defaultValue int, errs *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer (got '%s')", key, raw))
		return defaultValue
	}
	return value
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}

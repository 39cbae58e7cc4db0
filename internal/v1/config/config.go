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
	// Server
	Port           string
	GoEnv          string
	Development    bool
	AllowedOrigins string

	// Auth
	TokenSecret string
	TokenTTL    time.Duration

	// Heartbeat supervision
	HeartbeatInterval  time.Duration
	HeartbeatMaxMissed int

	// Limits
	MaxMessageBytes      int64
	ConnectRateLimit     string
	ConnectMaxConcurrent int
	MessageRateLimit     int
	MessageRateWindow    time.Duration

	// Shutdown
	ShutdownTimeout time.Duration

	// Optional Redis-backed limiter store
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// ICE advertisement
	StunURLs   string
	TurnURL    string
	TurnSecret string
	TurnTTL    time.Duration
}

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error listing every invalid or missing variable at once.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: PORT (defaults to 8080, must be a valid port number)
	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: GO_ENV (defaults to "development"; anything but "production" is development)
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "development")
	cfg.Development = cfg.GoEnv != "production"

	// TOKEN_SECRET is required in production; when present it must be long
	// enough to make HS256 brute force impractical.
	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		if !cfg.Development {
			errors = append(errors, "TOKEN_SECRET is required when GO_ENV=production")
		}
	} else if len(cfg.TokenSecret) < 32 {
		errors = append(errors, fmt.Sprintf("TOKEN_SECRET must be at least 32 characters (got %d)", len(cfg.TokenSecret)))
	}

	// ALLOWED_ORIGINS is required in production; an empty allow-list would
	// reject every browser, which is never what an operator wants.
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	if cfg.AllowedOrigins == "" && !cfg.Development {
		errors = append(errors, "ALLOWED_ORIGINS is required when GO_ENV=production")
	}

	cfg.TokenTTL = getDurationOrDefault("TOKEN_TTL", 5*time.Minute, &errors)

	cfg.HeartbeatInterval = getDurationOrDefault("HEARTBEAT_INTERVAL", 30*time.Second, &errors)
	cfg.HeartbeatMaxMissed = getIntOrDefault("HEARTBEAT_MAX_MISSED", 3, &errors)
	if cfg.HeartbeatMaxMissed < 1 {
		errors = append(errors, fmt.Sprintf("HEARTBEAT_MAX_MISSED must be at least 1 (got %d)", cfg.HeartbeatMaxMissed))
	}

	cfg.MaxMessageBytes = int64(getIntOrDefault("MAX_MESSAGE_BYTES", 65536, &errors))
	if cfg.MaxMessageBytes < 1024 {
		errors = append(errors, fmt.Sprintf("MAX_MESSAGE_BYTES must be at least 1024 (got %d)", cfg.MaxMessageBytes))
	}

	// Rate limits (connect window uses the limiter's "<count>-<period>" format)
	cfg.ConnectRateLimit = getEnvOrDefault("CONNECT_RATE_LIMIT", "20-M")
	cfg.ConnectMaxConcurrent = getIntOrDefault("CONNECT_MAX_CONCURRENT", 32, &errors)
	cfg.MessageRateLimit = getIntOrDefault("MESSAGE_RATE_LIMIT", 100, &errors)
	if cfg.MessageRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("MESSAGE_RATE_LIMIT must be at least 1 (got %d)", cfg.MessageRateLimit))
	}
	cfg.MessageRateWindow = getDurationOrDefault("MESSAGE_RATE_WINDOW", 10*time.Second, &errors)

	cfg.ShutdownTimeout = getDurationOrDefault("SHUTDOWN_TIMEOUT", 5*time.Second, &errors)

	// Conditional: REDIS_ADDR (used when REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			// Default to localhost:6379 if not specified
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// ICE advertisement
	cfg.StunURLs = getEnvOrDefault("STUN_URLS", "stun:stun.l.google.com:19302")
	cfg.TurnURL = os.Getenv("TURN_URL")
	cfg.TurnSecret = os.Getenv("TURN_SECRET")
	if cfg.TurnURL != "" && cfg.TurnSecret == "" {
		errors = append(errors, "TURN_SECRET is required when TURN_URL is set")
	}
	cfg.TurnTTL = getDurationOrDefault("TURN_TTL", time.Hour, &errors)

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"token_secret", redactSecret(cfg.TokenSecret),
		"token_ttl", cfg.TokenTTL,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"heartbeat_max_missed", cfg.HeartbeatMaxMissed,
		"max_message_bytes", cfg.MaxMessageBytes,
		"connect_rate_limit", cfg.ConnectRateLimit,
		"connect_max_concurrent", cfg.ConnectMaxConcurrent,
		"message_rate_limit", cfg.MessageRateLimit,
		"message_rate_window", cfg.MessageRateWindow,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"turn_url", cfg.TurnURL,
		"turn_secret", redactSecret(cfg.TurnSecret),
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getIntOrDefault parses an integer environment variable, appending to errs on failure
func getIntOrDefault(key string, defaultValue int, errs *[]string) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer (got '%s')", key, value))
		return defaultValue
	}
	return n
}

// getDurationOrDefault parses a duration environment variable ("30s", "5m"),
// appending to errs on failure
func getDurationOrDefault(key string, defaultValue time.Duration, errs *[]string) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be a duration like '30s' or '5m' (got '%s')", key, value))
		return defaultValue
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be positive (got '%s')", key, value))
		return defaultValue
	}
	return d
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}

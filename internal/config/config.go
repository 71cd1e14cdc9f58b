package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Channel
	Endpoint            string        `env:"CHANNEL_ENDPOINT" default:"pipe:HighPerfPipe"`
	ServerWriteInterval time.Duration `env:"SERVER_WRITE_INTERVAL" default:"2s"`
	ClientWriteInterval time.Duration `env:"CLIENT_WRITE_INTERVAL" default:"5s"`
	RetryInterval       time.Duration `env:"RETRY_INTERVAL" default:"10s"`
	AcceptDelay         time.Duration `env:"ACCEPT_DELAY" default:"1s"`
	StopTimeout         time.Duration `env:"STOP_TIMEOUT" default:"1s"`
	WriteTimeout        time.Duration `env:"WRITE_TIMEOUT" default:"10s"`
	MaxFrameSize        int           `env:"MAX_FRAME_SIZE" default:"1048576"`
	OutboxSize          int           `env:"OUTBOX_SIZE" default:"64"`

	// Control surface; each side gets its own port so both can run on one host
	ServerHTTPPort   int    `env:"SERVER_HTTP_PORT" default:"8080"`
	ClientHTTPPort   int    `env:"CLIENT_HTTP_PORT" default:"8081"`
	ControlEnabled   bool   `env:"CONTROL_ENABLED" default:"true"`
	ControlJWTSecret string `env:"CONTROL_JWT_SECRET"`

	// Redis sink (disabled when REDIS_URL is empty)
	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisPrefix   string `env:"REDIS_PREFIX" default:"gamebridge"`

	// Journal (disabled when DATABASE_URL is empty)
	DatabaseURL string `env:"DATABASE_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; system env vars still apply without it
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the process environment without touching .env.
func FromEnv() (*Config, error) {
	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// Channel
	if err := loadEnvString(&config.Endpoint, "CHANNEL_ENDPOINT", "pipe:HighPerfPipe"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ServerWriteInterval, "SERVER_WRITE_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ClientWriteInterval, "CLIENT_WRITE_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.RetryInterval, "RETRY_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.AcceptDelay, "ACCEPT_DELAY", time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.StopTimeout, "STOP_TIMEOUT", time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.WriteTimeout, "WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxFrameSize, "MAX_FRAME_SIZE", 1024*1024); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.OutboxSize, "OUTBOX_SIZE", 64); err != nil {
		return nil, err
	}

	// Control surface
	if err := loadEnvInt(&config.ServerHTTPPort, "SERVER_HTTP_PORT", 8080); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.ClientHTTPPort, "CLIENT_HTTP_PORT", 8081); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.ControlEnabled, "CONTROL_ENABLED", true); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ControlJWTSecret, "CONTROL_JWT_SECRET", ""); err != nil {
		return nil, err
	}

	// Redis
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPrefix, "REDIS_PREFIX", "gamebridge"); err != nil {
		return nil, err
	}

	// Database
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", ""); err != nil {
		return nil, err
	}

	// Logging
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "json"); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.Endpoint) == "" {
		errors = append(errors, "CHANNEL_ENDPOINT must not be empty")
	}
	if c.ServerHTTPPort < 1 || c.ServerHTTPPort > 65535 {
		errors = append(errors, "SERVER_HTTP_PORT must be between 1 and 65535")
	}
	if c.ClientHTTPPort < 1 || c.ClientHTTPPort > 65535 {
		errors = append(errors, "CLIENT_HTTP_PORT must be between 1 and 65535")
	}
	if c.ControlEnabled && c.ServerHTTPPort == c.ClientHTTPPort {
		errors = append(errors, "SERVER_HTTP_PORT and CLIENT_HTTP_PORT must differ")
	}
	if c.RetryInterval <= 0 {
		errors = append(errors, "RETRY_INTERVAL must be positive")
	}
	if c.AcceptDelay < 0 {
		errors = append(errors, "ACCEPT_DELAY must not be negative")
	}
	if c.StopTimeout <= 0 {
		errors = append(errors, "STOP_TIMEOUT must be positive")
	}
	if c.WriteTimeout <= 0 {
		errors = append(errors, "WRITE_TIMEOUT must be positive")
	}
	if c.MaxFrameSize < 64 {
		errors = append(errors, "MAX_FRAME_SIZE must be at least 64 bytes")
	}
	if c.OutboxSize < 1 {
		errors = append(errors, "OUTBOX_SIZE must be at least 1")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	// HMAC secrets shorter than 32 bytes are trivially brute-forced
	if c.ControlJWTSecret != "" && len(c.ControlJWTSecret) < 32 {
		errors = append(errors, "CONTROL_JWT_SECRET should be at least 32 characters long")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// RedisAddr strips the redis:// scheme the way the servers expect it.
func (c *Config) RedisAddr() string {
	addr := strings.TrimPrefix(c.RedisURL, "redis://")
	return strings.TrimPrefix(addr, "rediss://")
}

// ControlAddr is the loopback listen address for a control surface port.
func (c *Config) ControlAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

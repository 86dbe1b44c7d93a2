package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// IMAP account
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string

	// AI backends
	AnthropicAPIKey string
	AIModel         string
	AICommand       string
	// AICommandTimeout is the full timeout for the subprocess backend.
	// When a hosted API is configured as fallback, AIShortTimeout is
	// used instead so we fail over sooner.
	AICommandTimeout time.Duration
	AIShortTimeout   time.Duration
	AIAPITimeout     time.Duration
	AIDebug          bool

	// Cache and history
	CachePath   string
	HistoryPath string
	SyncDays    int

	LogLevel string
}

// Load reads configuration from the environment, after loading a .env
// file if one is present in the working directory.
func Load() (*Config, error) {
	// Missing .env is the normal case, not an error
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()

	cfg := &Config{
		IMAPHost:         getEnv("IMAP_HOST", ""),
		IMAPPort:         getEnvInt("IMAP_PORT", 993),
		IMAPUsername:     getEnv("IMAP_USERNAME", ""),
		IMAPPassword:     getEnv("IMAP_PASSWORD", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AIModel:          getEnv("AI_MODEL", "claude-sonnet-4-5-20250929"),
		AICommand:        getEnv("AI_COMMAND", "claude"),
		AICommandTimeout: getEnvDuration("AI_COMMAND_TIMEOUT", 60*time.Second),
		AIShortTimeout:   getEnvDuration("AI_SHORT_TIMEOUT", 20*time.Second),
		AIAPITimeout:     getEnvDuration("AI_API_TIMEOUT", 30*time.Second),
		AIDebug:          getEnvBool("AI_DEBUG", false),
		CachePath:        getEnv("CACHE_PATH", filepath.Join(home, ".mailpilot", "cache.db")),
		HistoryPath:      getEnv("HISTORY_PATH", filepath.Join(home, ".mailpilot", "history")),
		SyncDays:         getEnvInt("SYNC_DAYS", 7),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// HasHostedAI reports whether the hosted API backend is configured.
func (c *Config) HasHostedAI() bool {
	return c.AnthropicAPIKey != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IMAPHost == "" {
		return fmt.Errorf("IMAP_HOST is required")
	}
	if c.IMAPUsername == "" {
		return fmt.Errorf("IMAP_USERNAME is required")
	}
	if c.IMAPPassword == "" {
		return fmt.Errorf("IMAP_PASSWORD is required")
	}
	if c.IMAPPort < 1 || c.IMAPPort > 65535 {
		return fmt.Errorf("invalid IMAP_PORT: %d", c.IMAPPort)
	}
	if c.CachePath == "" {
		return fmt.Errorf("CACHE_PATH is required")
	}
	if c.SyncDays < 1 {
		return fmt.Errorf("SYNC_DAYS must be at least 1")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

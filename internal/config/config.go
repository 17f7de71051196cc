// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	DBPath        string
	JWTSecret     string
	DemoToken     string
	DemoUserID    string
	ContextTurns  int
	SweepInterval time.Duration
	Classifier    ClassifierConfig
}

// ClassifierConfig configures the external intent classifier service.
type ClassifierConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/arc.db"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		DemoToken:     getEnv("DEMO_TOKEN", ""),
		DemoUserID:    getEnv("DEMO_USER_ID", "demo-user"),
		ContextTurns:  getEnvInt("CONTEXT_TURNS", 5),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		Classifier: ClassifierConfig{
			BaseURL: getEnv("CLASSIFIER_BASE_URL", ""),
			APIKey:  getEnv("CLASSIFIER_API_KEY", ""),
			Model:   getEnv("CLASSIFIER_MODEL", "gpt-4o-mini"),
			Timeout: getEnvDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// A missing classifier API key is deliberately not an error here: the
// classifier client degrades to a fixed config-error response so the
// transport keeps working.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" && c.DemoToken == "" {
		return fmt.Errorf("at least one of JWT_SECRET or DEMO_TOKEN must be set")
	}
	if c.DemoToken != "" && c.DemoUserID == "" {
		return fmt.Errorf("DEMO_USER_ID cannot be empty when DEMO_TOKEN is set")
	}
	if c.ContextTurns <= 0 {
		return fmt.Errorf("CONTEXT_TURNS must be > 0")
	}
	if c.Classifier.Timeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be > 0")
	}
	if c.Classifier.Model == "" {
		return fmt.Errorf("CLASSIFIER_MODEL cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

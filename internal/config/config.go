// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	Environment string
	FrontendURL string
	Foundry     FoundryConfig
	Transcript  TranscriptConfig
	RateLimit   RateLimitConfig
}

// FoundryConfig describes how to reach the Agent Backend.
type FoundryConfig struct {
	Endpoint       string
	AgentID        string
	AgentName      string
	WorkspaceName  string // logging only
	APIVersion     string
	TokenScope     string
	RequestTimeout time.Duration
}

// TranscriptConfig controls the optional SQLite transcript store.
type TranscriptConfig struct {
	DBPath string // empty disables the store
}

// Enabled reports whether transcripts are persisted.
func (t TranscriptConfig) Enabled() bool {
	return t.DBPath != ""
}

// RateLimitConfig controls per-client throttling of chat requests.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Documented fallbacks used when the deployment does not provide values.
const (
	DefaultEndpoint   = "https://localhost-ai-foundry.services.ai.azure.com/api/projects/default"
	DefaultAgentID    = "asst_default"
	DefaultAPIVersion = "2025-05-01"
	DefaultTokenScope = "https://ai.azure.com/.default"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "Development"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		Foundry: FoundryConfig{
			Endpoint:       strings.TrimRight(getEnv("AI_FOUNDRY_ENDPOINT", DefaultEndpoint), "/"),
			AgentID:        getEnv("AI_FOUNDRY_AGENT_ID", DefaultAgentID),
			AgentName:      getEnv("AI_FOUNDRY_AGENT_NAME", ""), // empty uses the agent's own name
			WorkspaceName:  getEnv("AI_FOUNDRY_WORKSPACE_NAME", ""),
			APIVersion:     getEnv("AI_FOUNDRY_API_VERSION", DefaultAPIVersion),
			TokenScope:     getEnv("AI_FOUNDRY_TOKEN_SCOPE", DefaultTokenScope),
			RequestTimeout: getEnvDuration("AI_FOUNDRY_REQUEST_TIMEOUT", 30*time.Second),
		},
		Transcript: TranscriptConfig{
			DBPath: getEnv("TRANSCRIPT_DB_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("CHAT_RATE_LIMIT_RPS", 2),
			Burst:             getEnvInt("CHAT_RATE_LIMIT_BURST", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	u, err := url.Parse(c.Foundry.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("AI_FOUNDRY_ENDPOINT must be an absolute URL, got %q", c.Foundry.Endpoint)
	}
	if c.Foundry.AgentID == "" {
		return fmt.Errorf("AI_FOUNDRY_AGENT_ID cannot be empty")
	}
	if c.Foundry.APIVersion == "" {
		return fmt.Errorf("AI_FOUNDRY_API_VERSION cannot be empty")
	}
	if c.Foundry.RequestTimeout <= 0 {
		return fmt.Errorf("AI_FOUNDRY_REQUEST_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT_RPS must be > 0")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT_BURST must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if strings.EqualFold(c.Environment, "development") {
		return true
	}
	return strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
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

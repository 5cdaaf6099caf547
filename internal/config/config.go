// Package config provides configuration for supportdesk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the supportdesk configuration.
type Config struct {
	// Server settings
	HTTPPort int
	RPCPort  int

	// Database
	DatabaseDriver string
	DatabaseURL    string

	// Model endpoint
	Mode         string
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	LLMTimeout   time.Duration
	ModelTimeout time.Duration
	ToolTimeout  time.Duration

	// Conversation handling
	HistoryLimit  int
	DefaultUserID string

	// Rate limiting
	RedisURL      string
	RateLimitAPI  RateLimit
	RateLimitChat RateLimit

	// WebSocket settings
	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	WSMaxMessageSize int64

	// Responder prompt overrides keyed by responder id.
	Prompts map[string]string

	// Logging
	LogLevel string
}

// RateLimit is a fixed-window request budget.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Message  string        `yaml:"message"`
}

// fileConfig is the optional YAML overlay named by CONFIG_FILE.
type fileConfig struct {
	LLM struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"llm"`
	HistoryLimit int `yaml:"history_limit"`
	RateLimits   struct {
		API  *RateLimit `yaml:"api"`
		Chat *RateLimit `yaml:"chat"`
	} `yaml:"rate_limits"`
	Prompts map[string]string `yaml:"prompts"`
}

// Load loads configuration from environment variables, then applies the
// YAML overlay when CONFIG_FILE is set.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		RPCPort:        getEnvInt("RPC_PORT", 8082),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:    getEnv("DATABASE_URL", "file:supportdesk.db?cache=shared&mode=rwc"),
		Mode:           getEnv("SUPPORTDESK_MODE", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:     time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		ModelTimeout:   time.Duration(getEnvInt("MODEL_TIMEOUT_MS", 60000)) * time.Millisecond,
		ToolTimeout:    time.Duration(getEnvInt("TOOL_TIMEOUT_MS", 10000)) * time.Millisecond,
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 20),
		DefaultUserID:  getEnv("DEFAULT_USER_ID", "demo-user"),
		RedisURL:       getEnv("REDIS_URL", ""),
		RateLimitAPI: RateLimit{
			Requests: getEnvInt("RATE_LIMIT_API_REQUESTS", 100),
			Window:   time.Duration(getEnvInt("RATE_LIMIT_API_WINDOW_MS", 60000)) * time.Millisecond,
			Message:  "Too many API requests. Please wait a moment and try again.",
		},
		RateLimitChat: RateLimit{
			Requests: getEnvInt("RATE_LIMIT_CHAT_REQUESTS", 20),
			Window:   time.Duration(getEnvInt("RATE_LIMIT_CHAT_WINDOW_MS", 60000)) * time.Millisecond,
			Message:  "Too many messages. Please slow down and try again shortly.",
		},
		WSPingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WSWriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSMaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		Prompts:          map[string]string{},
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.LLM.BaseURL != "" {
		c.LLMBaseURL = fc.LLM.BaseURL
	}
	if fc.LLM.Model != "" {
		c.LLMModel = fc.LLM.Model
	}
	if fc.HistoryLimit > 0 {
		c.HistoryLimit = fc.HistoryLimit
	}
	mergeRateLimit(&c.RateLimitAPI, fc.RateLimits.API)
	mergeRateLimit(&c.RateLimitChat, fc.RateLimits.Chat)
	for k, v := range fc.Prompts {
		c.Prompts[k] = v
	}
	return nil
}

func mergeRateLimit(dst *RateLimit, src *RateLimit) {
	if src == nil {
		return
	}
	if src.Requests > 0 {
		dst.Requests = src.Requests
	}
	if src.Window > 0 {
		dst.Window = src.Window
	}
	if src.Message != "" {
		dst.Message = src.Message
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

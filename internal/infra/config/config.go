// Package config provides process-wide configuration loaded from env vars.
// All fields have safe defaults so the binary runs locally without any setup.
//
// Precedence (highest first): process environment, .env file, YAML file named
// by CHATROUTE_CONFIG, built-in defaults.
//
// The generation configuration (mode, model, credential...) is NOT here: it is
// a mutable record owned by the settings store and read on every prompt.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for chatroute.
type Config struct {
	// HTTP
	Host string // HTTP_HOST default: "0.0.0.0"
	Port int    // HTTP_PORT default: 8080

	// Storage
	DatabasePath string // DATABASE_PATH default: "data/chatroute.db"

	// Local backends
	OllamaBaseURL     string        // OLLAMA_BASE_URL default: "http://localhost:11434"
	LocalLoadTimeout  time.Duration // LOCAL_LOAD_TIMEOUT default: 5m
	GenerationTimeout time.Duration // GENERATION_TIMEOUT default: 5m, bounds one streamed reply
	EchoDelay         time.Duration // ECHO_DELAY default: 30ms between echo backend words

	// Remote providers
	RemoteTimeout        time.Duration // REMOTE_TIMEOUT default: 60s
	StrictProviderShapes bool          // STRICT_PROVIDER_SHAPES default: false
	HuggingFaceBaseURL   string        // HUGGINGFACE_BASE_URL
	GeminiBaseURL        string        // GEMINI_BASE_URL (empty = SDK default)
	OpenAIBaseURL        string        // OPENAI_BASE_URL (empty = SDK default)
	AnthropicBaseURL     string        // ANTHROPIC_BASE_URL (empty = SDK default)

	// Logging
	LogLevel  string // LOG_LEVEL default: "info"
	LogFormat string // LOG_FORMAT "json" | "console", default: "json"

	// Bootstrap
	AdminPassword string // ADMIN_PASSWORD default: "admin"
}

const (
	envKeyConfigFile           = "CHATROUTE_CONFIG"
	envKeyHost                 = "HTTP_HOST"
	envKeyPort                 = "HTTP_PORT"
	envKeyDatabasePath         = "DATABASE_PATH"
	envKeyOllamaBaseURL        = "OLLAMA_BASE_URL"
	envKeyLocalLoadTimeout     = "LOCAL_LOAD_TIMEOUT"
	envKeyGenerationTimeout    = "GENERATION_TIMEOUT"
	envKeyEchoDelay            = "ECHO_DELAY"
	envKeyRemoteTimeout        = "REMOTE_TIMEOUT"
	envKeyStrictProviderShapes = "STRICT_PROVIDER_SHAPES"
	envKeyHuggingFaceBaseURL   = "HUGGINGFACE_BASE_URL"
	envKeyGeminiBaseURL        = "GEMINI_BASE_URL"
	envKeyOpenAIBaseURL        = "OPENAI_BASE_URL"
	envKeyAnthropicBaseURL     = "ANTHROPIC_BASE_URL"
	envKeyLogLevel             = "LOG_LEVEL"
	envKeyLogFormat            = "LOG_FORMAT"
	envKeyAdminPassword        = "ADMIN_PASSWORD"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		DatabasePath:       "data/chatroute.db",
		OllamaBaseURL:      "http://localhost:11434",
		LocalLoadTimeout:   5 * time.Minute,
		GenerationTimeout:  5 * time.Minute,
		EchoDelay:          30 * time.Millisecond,
		RemoteTimeout:      60 * time.Second,
		HuggingFaceBaseURL: "https://api-inference.huggingface.co",
		LogLevel:           "info",
		LogFormat:          "json",
		AdminPassword:      "admin",
	}
}

// fileConfig mirrors Config for YAML decoding. Durations are strings ("90s").
type fileConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	DatabasePath         string `yaml:"database_path"`
	OllamaBaseURL        string `yaml:"ollama_base_url"`
	LocalLoadTimeout     string `yaml:"local_load_timeout"`
	GenerationTimeout    string `yaml:"generation_timeout"`
	RemoteTimeout        string `yaml:"remote_timeout"`
	StrictProviderShapes bool   `yaml:"strict_provider_shapes"`
	HuggingFaceBaseURL   string `yaml:"huggingface_base_url"`
	GeminiBaseURL        string `yaml:"gemini_base_url"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`
	AnthropicBaseURL     string `yaml:"anthropic_base_url"`
	LogLevel             string `yaml:"log_level"`
	LogFormat            string `yaml:"log_format"`
}

// Load reads configuration from environment variables, applying the YAML
// overlay and defaults for missing values. A missing .env file is not an
// error; an unreadable or malformed YAML file is.
func Load() (Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	cfg := Defaults()
	if path := os.Getenv(envKeyConfigFile); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.Host = envOr(envKeyHost, cfg.Host)
	cfg.Port = envIntOr(envKeyPort, cfg.Port)
	cfg.DatabasePath = envOr(envKeyDatabasePath, cfg.DatabasePath)
	cfg.OllamaBaseURL = envOr(envKeyOllamaBaseURL, cfg.OllamaBaseURL)
	cfg.LocalLoadTimeout = envDurationOr(envKeyLocalLoadTimeout, cfg.LocalLoadTimeout)
	cfg.GenerationTimeout = envDurationOr(envKeyGenerationTimeout, cfg.GenerationTimeout)
	cfg.EchoDelay = envDurationOr(envKeyEchoDelay, cfg.EchoDelay)
	cfg.RemoteTimeout = envDurationOr(envKeyRemoteTimeout, cfg.RemoteTimeout)
	cfg.StrictProviderShapes = envBoolOr(envKeyStrictProviderShapes, cfg.StrictProviderShapes)
	cfg.HuggingFaceBaseURL = envOr(envKeyHuggingFaceBaseURL, cfg.HuggingFaceBaseURL)
	cfg.GeminiBaseURL = envOr(envKeyGeminiBaseURL, cfg.GeminiBaseURL)
	cfg.OpenAIBaseURL = envOr(envKeyOpenAIBaseURL, cfg.OpenAIBaseURL)
	cfg.AnthropicBaseURL = envOr(envKeyAnthropicBaseURL, cfg.AnthropicBaseURL)
	cfg.LogLevel = envOr(envKeyLogLevel, cfg.LogLevel)
	cfg.LogFormat = envOr(envKeyLogFormat, cfg.LogFormat)
	cfg.AdminPassword = envOr(envKeyAdminPassword, cfg.AdminPassword)
	return cfg, nil
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// applyFile overlays non-zero values from a YAML file onto cfg.
func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.Host = coalesce(fc.Host, cfg.Host)
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	cfg.DatabasePath = coalesce(fc.DatabasePath, cfg.DatabasePath)
	cfg.OllamaBaseURL = coalesce(fc.OllamaBaseURL, cfg.OllamaBaseURL)
	cfg.HuggingFaceBaseURL = coalesce(fc.HuggingFaceBaseURL, cfg.HuggingFaceBaseURL)
	cfg.GeminiBaseURL = coalesce(fc.GeminiBaseURL, cfg.GeminiBaseURL)
	cfg.OpenAIBaseURL = coalesce(fc.OpenAIBaseURL, cfg.OpenAIBaseURL)
	cfg.AnthropicBaseURL = coalesce(fc.AnthropicBaseURL, cfg.AnthropicBaseURL)
	cfg.LogLevel = coalesce(fc.LogLevel, cfg.LogLevel)
	cfg.LogFormat = coalesce(fc.LogFormat, cfg.LogFormat)
	cfg.StrictProviderShapes = cfg.StrictProviderShapes || fc.StrictProviderShapes

	if fc.RemoteTimeout != "" {
		d, err := time.ParseDuration(fc.RemoteTimeout)
		if err != nil {
			return fmt.Errorf("config: remote_timeout: %w", err)
		}
		cfg.RemoteTimeout = d
	}
	if fc.GenerationTimeout != "" {
		d, err := time.ParseDuration(fc.GenerationTimeout)
		if err != nil {
			return fmt.Errorf("config: generation_timeout: %w", err)
		}
		cfg.GenerationTimeout = d
	}
	if fc.LocalLoadTimeout != "" {
		d, err := time.ParseDuration(fc.LocalLoadTimeout)
		if err != nil {
			return fmt.Errorf("config: local_load_timeout: %w", err)
		}
		cfg.LocalLoadTimeout = d
	}
	return nil
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOr is envOr for integers; unparsable values fall back silently.
func envIntOr(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func coalesce(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

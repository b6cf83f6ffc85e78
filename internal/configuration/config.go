package configuration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/reinhart/webmd/internal/logger"
)

// DefaultSystemPrompt is used when a run does not supply its own.
const DefaultSystemPrompt = "You are a helpful assistant. When the user refers to a webpage, " +
	"use the parseWebpageToMarkdown tool to read it before answering."

// Config represents the application configuration
type Config struct {
	LLM   LLMConfig   `toml:"llm"`
	Agent AgentConfig `toml:"agent"`
	Fetch FetchConfig `toml:"fetch"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

type LLMConfig struct {
	Provider       string   `toml:"provider"`
	OpenAIKey      string   `toml:"openai_api_key"`
	AnthropicKey   string   `toml:"anthropic_api_key"`
	GeminiKey      string   `toml:"gemini_api_key"`
	OpenAIModel    string   `toml:"openai_model"`
	AnthropicModel string   `toml:"anthropic_model"`
	GeminiModel    string   `toml:"gemini_model"`
	BaseURL        string   `toml:"base_url"`
	OllamaHost     string   `toml:"ollama_host"`
	OllamaModel    string   `toml:"ollama_model"`
	MaxRetries     int      `toml:"max_retries"`
	RequestTimeout Duration `toml:"request_timeout"`
}

type AgentConfig struct {
	SystemPrompt string `toml:"system_prompt"`
	Debug        bool   `toml:"debug"`
}

type FetchConfig struct {
	Timeout      Duration `toml:"timeout"`
	UserAgent    string   `toml:"user_agent"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
}

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			MaxRetries:     3,
			RequestTimeout: Duration{120 * time.Second},
		},
		Agent: AgentConfig{
			SystemPrompt: DefaultSystemPrompt,
			Debug:        false,
		},
		Fetch: FetchConfig{
			Timeout:      Duration{30 * time.Second},
			UserAgent:    "webmd/1.0",
			MaxBodyBytes: 10 << 20,
		},
	}
}

// SearchPaths lists the locations tried when no explicit path is given
func SearchPaths() []string {
	return []string{
		"./config.toml", // Current directory (for development)
		filepath.Join(os.Getenv("HOME"), ".config", "webmd", "config.toml"), // User config (XDG)
		"/etc/webmd/config.toml", // System-wide config
	}
}

// LoadConfig loads configuration from path, or from the first file found in
// SearchPaths when path is empty, then applies .env and environment overrides.
// A missing explicit path is an error; missing search paths fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		config.Path = path
	} else {
		for _, candidate := range SearchPaths() {
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if _, err := toml.DecodeFile(candidate, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", candidate, err)
			}
			config.Path = candidate
			break
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnv(config)

	if config.Path == "" {
		logger.Debug("No config file found, using defaults")
	} else {
		logger.Debug("Loaded config from: %s", config.Path)
	}
	return config, nil
}

// Override with environment variables if set
func applyEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.OpenAIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.LLM.AnthropicKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.LLM.GeminiKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Agent.Debug = true
	}
}

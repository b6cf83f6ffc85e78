package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/reinhart/webmd/internal/assistant"
	"github.com/reinhart/webmd/internal/configuration"
)

var ErrMissingAPIKey = errors.New("missing API key")

// Setting keys understood in a run's settings bag.
const (
	SettingAPIKey   = "API_KEY"
	SettingProvider = "PROVIDER"
	SettingBaseURL  = "BASE_URL"
)

// ProviderFactory builds the completion provider for one run.
type ProviderFactory func(ctx context.Context, cfg *configuration.Config, settings map[string]any) (assistant.LLMProvider, error)

// NewProvider picks the provider named by settings or config. Settings win
// over config values.
func NewProvider(ctx context.Context, cfg *configuration.Config, settings map[string]any) (assistant.LLMProvider, error) {
	providerType := cfg.LLM.Provider
	if p := settingString(settings, SettingProvider); p != "" {
		providerType = p
	}
	apiKey := settingString(settings, SettingAPIKey)

	opts := assistant.ProviderOptions{
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.RequestTimeout.Duration,
		MaxRetries: cfg.LLM.MaxRetries,
	}
	if u := settingString(settings, SettingBaseURL); u != "" {
		opts.BaseURL = u
	}

	switch strings.ToLower(providerType) {
	case "openai", "":
		if apiKey == "" {
			apiKey = cfg.LLM.OpenAIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: set %s in settings, openai_api_key in config, or OPENAI_API_KEY", ErrMissingAPIKey, SettingAPIKey)
		}
		return assistant.NewOpenAIProvider(apiKey, cfg.LLM.OpenAIModel, opts), nil
	case "ollama":
		host := cfg.LLM.OllamaHost
		if opts.BaseURL != "" {
			host = opts.BaseURL
		}
		return assistant.NewOllamaProvider(host, cfg.LLM.OllamaModel, opts), nil
	case "anthropic":
		if apiKey == "" {
			apiKey = cfg.LLM.AnthropicKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: set %s in settings, anthropic_api_key in config, or ANTHROPIC_API_KEY", ErrMissingAPIKey, SettingAPIKey)
		}
		return assistant.NewAnthropicProvider(apiKey, cfg.LLM.AnthropicModel, opts), nil
	case "gemini":
		if apiKey == "" {
			apiKey = cfg.LLM.GeminiKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: set %s in settings, gemini_api_key in config, or GEMINI_API_KEY", ErrMissingAPIKey, SettingAPIKey)
		}
		return assistant.NewGeminiProvider(ctx, apiKey, cfg.LLM.GeminiModel, opts)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (supported: openai, anthropic, gemini, ollama)", providerType)
	}
}

func settingString(settings map[string]any, key string) string {
	v, ok := settings[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

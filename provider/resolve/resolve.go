// Package resolve maps provider-agnostic configuration to concrete chat and
// embedding providers, filling in the known base URLs for OpenAI-compatible
// endpoints.
package resolve

import (
	"fmt"

	sage "github.com/vheim/sage"
	"github.com/vheim/sage/provider/gemini"
	"github.com/vheim/sage/provider/openai"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "gemini", "openai", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // auto-filled for known providers when empty

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
}

// EmbeddingConfig holds provider-agnostic configuration for creating an
// EmbeddingProvider.
type EmbeddingConfig struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// Provider creates a sage.Provider from a provider-agnostic Config.
func Provider(cfg Config) (sage.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return geminiProvider(cfg), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

// EmbeddingProvider creates a sage.EmbeddingProvider from a
// provider-agnostic EmbeddingConfig.
func EmbeddingProvider(cfg EmbeddingConfig) (sage.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "gemini":
		var opts []gemini.EmbeddingOption
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithEmbeddingBaseURL(cfg.BaseURL))
		}
		return gemini.NewEmbedding(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		opts := []openai.Option{openai.WithName(cfg.Provider)}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.NewEmbedding(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...), nil
	default:
		return nil, fmt.Errorf("resolve: embedding provider %q not supported", cfg.Provider)
	}
}

func geminiProvider(cfg Config) sage.Provider {
	var opts []gemini.Option
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	return gemini.New(cfg.APIKey, cfg.Model, opts...)
}

func openaiProvider(cfg Config) sage.Provider {
	opts := []openai.Option{openai.WithName(cfg.Provider)}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if cfg.Temperature != nil {
		opts = append(opts, openai.WithTemperature(float32(*cfg.Temperature)))
	}
	return openai.New(cfg.APIKey, cfg.Model, opts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "" // client default
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}

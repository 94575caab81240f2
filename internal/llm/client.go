// Package llm adapts language model providers to a single completion call.
package llm

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Client completes input under a system instruction.
type Client interface {
	Complete(ctx context.Context, instruction string, input string) (string, error)
}

// Provider names a supported language model backend.
type Provider string

const (
	// ProviderOllama talks to a local Ollama server through langchaingo.
	ProviderOllama Provider = "ollama"
	// ProviderOpenAI talks to an OpenAI-compatible endpoint through langchaingo.
	ProviderOpenAI Provider = "openai"
	// ProviderGemini talks to the Gemini API through the genai SDK.
	ProviderGemini Provider = "gemini"
	// ProviderStatic produces extractive summaries without any network access.
	ProviderStatic Provider = "static"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultGeminiModel = "gemini-2.5-flash"
)

// Config holds configuration for creating a Client. Temperature is sent with
// every request.
type Config struct {
	Provider    Provider
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
}

// AvailableProviders returns the supported providers.
func AvailableProviders() []Provider {
	return []Provider{ProviderOllama, ProviderOpenAI, ProviderGemini, ProviderStatic}
}

// IsAvailable reports whether provider names a supported backend.
func IsAvailable(provider Provider) bool {
	return slices.Contains(AvailableProviders(), provider)
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider Provider) string {
	switch provider {
	case ProviderOllama:
		return defaultOllamaModel
	case ProviderOpenAI:
		return defaultOpenAIModel
	case ProviderGemini:
		return defaultGeminiModel
	default:
		return ""
	}
}

// NewClient creates a Client from cfg.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	cfg.Provider = Provider(strings.ToLower(strings.TrimSpace(string(cfg.Provider))))
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaURL
		}
		return newOllamaClient(cfg)
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return newOpenAIClient(cfg)
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Gemini API key is required")
		}
		return newGeminiClient(ctx, cfg)
	case ProviderStatic:
		return StaticClient{}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

var errEmptyCompletion = errors.New("provider returned no choices")

// langchainClient adapts any langchaingo model to Client.
type langchainClient struct {
	model       llms.Model
	provider    Provider
	temperature float64
}

func newOllamaClient(cfg Config) (Client, error) {
	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating Ollama client: %w", err)
	}
	return &langchainClient{model: model, provider: ProviderOllama, temperature: cfg.Temperature}, nil
}

func newOpenAIClient(cfg Config) (Client, error) {
	options := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		options = append(options, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(options...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &langchainClient{model: model, provider: ProviderOpenAI, temperature: cfg.Temperature}, nil
}

func (c *langchainClient) Complete(ctx context.Context, instruction string, input string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, instruction),
		llms.TextParts(schema.ChatMessageTypeHuman, input),
	}
	response, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.provider, err)
	}
	if response == nil || len(response.Choices) == 0 {
		return "", MarkTransient(fmt.Errorf("%s completion: %w", c.provider, errEmptyCompletion))
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// geminiClient implements Client using Google's Gemini Go SDK.
type geminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

func newGeminiClient(ctx context.Context, cfg Config) (Client, error) {
	clientConfig := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiClient{client: client, model: cfg.Model, temperature: float32(cfg.Temperature)}, nil
}

func (c *geminiClient) Complete(ctx context.Context, instruction string, input string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(input, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(instruction)},
		},
		Temperature: genai.Ptr(c.temperature),
	}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", MarkTransient(fmt.Errorf("Gemini completion: %w", errEmptyCompletion))
	}
	return text, nil
}

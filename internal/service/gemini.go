package service

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
)

type GeminiOptions struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// GeminiGenerator asks a Gemini model for a move.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func NewGeminiGenerator(ctx context.Context, opts GeminiOptions) (*GeminiGenerator, error) {
	if opts.APIKey == "" {
		return nil, apperror.ErrMissingCredential
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  opts.Model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(opts.Temperature),
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}, nil
}

func (that *GeminiGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	response, err := that.client.Models.GenerateContent(ctx, that.model, genai.Text(prompt), that.config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return response.Text(), nil
}

// File: internal/decision/gemini.go
package decision

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// Gemini drives the Gemini Computer Use API. It holds the genai client, the
// model identifier, and the generation config enabling the browser
// environment tool.
type Gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	logger *zap.Logger
}

var _ Client = (*Gemini)(nil)

// NewGemini validates the credential and constructs the API client. A
// missing API key is a setup failure: no client, no partial state.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  cfg.Model,
		config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{
					ComputerUse: &genai.ComputerUse{
						Environment: genai.EnvironmentBrowser,
					},
				},
			},
		},
		logger: logger.Named("gemini"),
	}, nil
}

// GenerateTurn sends the conversation and returns the first candidate's
// content.
func (g *Gemini) GenerateTurn(ctx context.Context, contents []*genai.Content) (*genai.Content, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return nil, fmt.Errorf("decision service request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("decision service returned no candidates")
	}

	candidate := resp.Candidates[0]
	g.logger.Debug("Received model turn.",
		zap.Int("parts", len(candidate.Content.Parts)),
		zap.Int("function_calls", len(FunctionCalls(candidate.Content))))

	return candidate.Content, nil
}

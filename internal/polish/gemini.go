package polish

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini polishes text with a Gemini model.
type Gemini struct {
	model    string
	generate func(ctx context.Context, prompt string) (string, error)
}

// NewGemini creates a Gemini-backed Polisher.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("polish: gemini: api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("polish: gemini: %w", err)
	}
	g := &Gemini{model: model}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return g, nil
}

// Polish implements Polisher.
func (g *Gemini) Polish(ctx context.Context, text, mode string) (string, error) {
	out, err := g.generate(ctx, Prompt(text, mode))
	if err != nil {
		return "", fmt.Errorf("polish: gemini %s: %w", g.model, err)
	}
	return clean(out)
}

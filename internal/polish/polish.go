// Package polish refines operator drafts through a language model before
// they are sent.
package polish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/config"
)

// ErrEmpty is returned when the provider produced no usable text.
var ErrEmpty = errors.New("polish: provider returned empty text")

// Polisher rewrites text in the requested tone.
type Polisher interface {
	Polish(ctx context.Context, text, mode string) (string, error)
}

// DefaultMode is the tone used when none is requested.
const DefaultMode = "casual"

// Prompt builds the instruction sent to the model.
func Prompt(text, mode string) string {
	if mode == "" || !isTone(mode) {
		mode = DefaultMode
	}
	return fmt.Sprintf("Please polish this text in a %s tone and return the result and the result only as your response. Thank you so much!: %s", mode, text)
}

// Send modes are not tones; they fall back to the default.
func isTone(mode string) bool {
	switch mode {
	case "plaintext", "code", "url":
		return false
	}
	return true
}

// New builds the configured provider.
func New(ctx context.Context, cfg config.PolishConfig) (Polisher, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "http":
		return NewHTTP(cfg.Endpoint, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("polish: unknown provider %q", cfg.Provider)
	}
}

// clean trims model output and rejects empty results.
func clean(out string) (string, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmpty
	}
	return out, nil
}

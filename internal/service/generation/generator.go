// Package generation wraps the hosted text generation providers the relay
// forwards prompts to.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMissingCredential is returned when a provider needs an API key that is
// not configured.
var ErrMissingCredential = errors.New("provider credential is missing")

// Generator produces a single text answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
	ProviderExec   = "exec"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-3-flash"

// Config selects and configures a provider.
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	Command   string
	MockDelay time.Duration
}

// New constructs the configured provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderMock:
		return NewMock(cfg.MockDelay), nil
	case ProviderExec:
		return NewExec(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// Package assistant turns natural-language requests into SQL, explanations
// and ETL pipeline designs by prompting a large language model. The model
// is reached through a Completer so providers can be swapped and faked.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoAPIKey is returned when neither the request nor the client
// configuration carries a provider API key.
var ErrNoAPIKey = errors.New("assistant: no API key provided")

// ErrMalformedResponse reports model output that could not be parsed as
// the expected JSON. Parsers still return a best-effort value with it.
var ErrMalformedResponse = errors.New("assistant: malformed model response")

// Prompt is a single completion request.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
	// APIKey overrides the configured key for this request.
	APIKey string
}

// Completer sends a prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Provider() string
}

// Config selects and configures the provider.
type Config struct {
	Provider string        `yaml:"provider"` // anthropic, openai
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NewCompleter builds the Completer named by cfg.Provider. An empty
// provider selects Anthropic.
func NewCompleter(cfg Config) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "anthropic", "claude":
		return NewAnthropic(cfg), nil
	case "openai", "openai-compatible":
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown assistant provider %q (available: anthropic, openai)", cfg.Provider)
	}
}

func resolveKey(override, configured string) (string, error) {
	if k := strings.TrimSpace(override); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(configured); k != "" {
		return k, nil
	}
	return "", ErrNoAPIKey
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

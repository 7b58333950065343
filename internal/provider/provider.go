// Package provider abstracts the LLM backend behind a single Generate
// capability. The pipeline above it neither knows nor cares which vendor
// answers; it only sees final text, streamed fragments and typed failures.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loreforge/loreforge/internal/config"
)

// GenerateOptions tunes a single completion call.
type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
	// OnChunk, when set, receives incremental text fragments as they
	// stream in. It is called from the request goroutine.
	OnChunk func(string)
}

// Provider is the single capability the generation pipeline consumes.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Error is a typed provider failure. Partial carries whatever response text
// had been received before the failure so callers can salvage it.
type Error struct {
	Status  int
	Code    string
	Message string
	Partial string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Message)
}

// Retryable reports whether the failure is transient: rate limiting,
// server-side errors and overload responses.
func (e *Error) Retryable() bool {
	return e.Status == 429 || e.Status == 529 || (e.Status >= 500 && e.Status < 600)
}

// IsContextOverflow reports whether err indicates the requested output size
// exceeds the model's context limits, which callers handle by stepping the
// output budget down.
func IsContextOverflow(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Code == "context_length_exceeded" {
		return true
	}
	if pe.Status != 400 {
		return false
	}
	msg := strings.ToLower(pe.Message)
	return strings.Contains(msg, "context") ||
		strings.Contains(msg, "too long") ||
		strings.Contains(msg, "max_tokens") ||
		strings.Contains(msg, "maximum number of tokens")
}

// PartialText extracts salvageable partial response text from a provider
// failure, if any.
func PartialText(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Partial
	}
	return ""
}

// New builds the backend named by cfg.
func New(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Backend {
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey,
			WithModel(cfg.Model),
			WithBaseURL(cfg.BaseURL),
			WithRateLimit(cfg.RequestsPerMinute, cfg.BurstSize),
		), nil
	case "openai":
		return NewOpenAIClient(cfg)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.Backend)
	}
}

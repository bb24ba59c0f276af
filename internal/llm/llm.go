// Package llm provides the LLM providers used to turn a prompt into SQL text,
// and the Generator that reduces a provider reply to the raw reply text.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider defines the interface for LLM integrations.
type Provider interface {
	// GenerateContent sends the ordered prompt parts and returns the model's
	// candidates. A reply with no candidates is not an error at this level.
	GenerateContent(ctx context.Context, parts []string) (Reply, error)

	// Name returns the provider name for logging/metrics.
	Name() string
}

// Reply is a provider response.
type Reply struct {
	Candidates []Candidate
}

// Candidate is one alternative generated by the model.
type Candidate struct {
	Parts []Part
}

// Part is a block of generated text.
type Part struct {
	Text string
}

// Text returns the text of the first part of the first candidate.
func (r Reply) Text() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Parts) == 0 {
		return "", false
	}
	return r.Candidates[0].Parts[0].Text, true
}

// Config holds LLM provider configuration.
type Config struct {
	Provider    string        // "gemini", "openai" or "anthropic"
	APIKey      string        // API key for the provider
	Model       string        // Model name (e.g., "gemini-2.0-flash", "gpt-4o")
	BaseURL     string        // Base URL (for proxies, OpenRouter, etc.)
	Timeout     time.Duration // HTTP client timeout (0 = 60s)
	Temperature float64
}

const defaultTimeout = 60 * time.Second

// NewProvider creates an LLM provider based on configuration.
func NewProvider(cfg Config) (Provider, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("LLM API key is required (set GOOGLE_API_KEY or LLM_API_KEY)")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	switch cfg.Provider {
	case "gemini":
		if cfg.Model == "" {
			cfg.Model = "gemini-2.0-flash"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		return NewGeminiProvider(cfg), nil

	case "openai":
		if cfg.Model == "" {
			cfg.Model = "gpt-4o"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIProvider(cfg), nil

	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-20250514"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.anthropic.com/v1"
		}
		return NewAnthropicProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: gemini, openai, anthropic)", cfg.Provider)
	}
}

// splitSystem maps prompt parts onto chat-style APIs: the first part is the
// system prompt, the rest form the user message.
func splitSystem(parts []string) (system, user string) {
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[0], strings.Join(parts[1:], "\n")
	}
}

package llm

import (
	"context"
	"fmt"

	"github.com/Tedsan/daily-topic/internal/config"
)

const (
	// DefaultAnthropicModel is the default Claude model used for summarization.
	DefaultAnthropicModel = "claude-3-sonnet-20240229"
	// DefaultGeminiModel is the default Gemini model used for summarization.
	DefaultGeminiModel = "gemini-flash-lite-latest"
)

// Request is a single prompt sent to a model
type Request struct {
	System      string  // System instruction
	User        string  // User message
	MaxTokens   int     // Maximum number of tokens to generate
	Temperature float64 // Temperature for randomness (0.0 to 1.0)
}

// Response is the text answer of a model with its token usage
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Client is implemented by every model provider
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// NewFromConfig creates the provider selected in the configuration, wrapped
// with latency and usage logging.
func NewFromConfig(ctx context.Context, cfg config.LLM) (Client, error) {
	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case "anthropic", "":
		client, err = NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.BaseURL)
	case "gemini":
		client, err = NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewTracedClient(client), nil
}

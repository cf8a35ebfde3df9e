package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient talks to the Claude Messages API
type AnthropicClient struct {
	client    anthropic.Client
	modelName string
}

// NewAnthropicClient creates a Claude client. baseURL is optional and only
// overrides the API endpoint.
func NewAnthropicClient(apiKey, modelName, baseURL string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required. Set ANTHROPIC_API_KEY environment variable or llm.anthropic.api_key in config file")
	}
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		options = append(options, option.WithBaseURL(baseURL))
	}
	options = append(options, opts...)

	return &AnthropicClient{
		client:    anthropic.NewClient(options...),
		modelName: modelName,
	}, nil
}

// Model returns the configured model name
func (c *AnthropicClient) Model() string {
	return c.modelName
}

// Complete sends req as one user message and returns the concatenated text blocks
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.User == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	model := string(msg.Model)
	if model == "" {
		model = c.modelName
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Model:        model,
	}, nil
}

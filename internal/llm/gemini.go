package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API through the genai SDK
type GeminiClient struct {
	modelName string
	gClient   *genai.Client
}

// NewGeminiClient creates a Gemini client
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or llm.gemini.api_key in config file.\nGet your API key from: https://makersuite.google.com/app/apikey")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{modelName: modelName, gClient: gClient}, nil
}

// Model returns the configured model name
func (c *GeminiClient) Model() string {
	return c.modelName
}

// Complete generates content for req
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.User == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.User}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	temp := float32(req.Temperature)
	config.Temperature = &temp

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	out := &Response{Text: text, Model: c.modelName}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

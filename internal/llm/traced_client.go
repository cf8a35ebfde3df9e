package llm

import (
	"context"
	"time"

	"github.com/Tedsan/daily-topic/internal/logger"
)

// TracedClient wraps a Client and logs latency and token usage of every call
type TracedClient struct {
	client Client
}

// NewTracedClient creates a new traced client
func NewTracedClient(client Client) *TracedClient {
	return &TracedClient{client: client}
}

// Underlying returns the wrapped client
func (tc *TracedClient) Underlying() Client {
	return tc.client
}

// Model returns the model of the wrapped client
func (tc *TracedClient) Model() string {
	return tc.client.Model()
}

// Complete calls the wrapped client and logs the outcome
func (tc *TracedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	resp, err := tc.client.Complete(ctx, req)
	latencyMs := time.Since(startTime).Milliseconds()

	if err != nil {
		logger.Error("llm call failed", err, "model", tc.client.Model(), "latency_ms", latencyMs)
		return nil, err
	}

	logger.Info("llm call completed",
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"latency_ms", latencyMs)
	return resp, nil
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Tedsan/daily-topic/internal/config"
)

func newMessagesServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if captured != nil {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestAnthropicComplete(t *testing.T) {
	var request map[string]any
	server := newMessagesServer(t, http.StatusOK, `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-sonnet-20240229",
		"content": [{"type": "text", "text": "{\"summary\": \"ok\"}"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 120, "output_tokens": 45}
	}`, &request)
	defer server.Close()

	client, err := NewAnthropicClient("test-key", "", server.URL, option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewAnthropicClient returned error: %v", err)
	}

	resp, err := client.Complete(context.Background(), Request{
		System:      "system prompt",
		User:        "user prompt",
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	if resp.Text != `{"summary": "ok"}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.InputTokens != 120 || resp.OutputTokens != 45 {
		t.Errorf("Usage = %d/%d, expected 120/45", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Model != DefaultAnthropicModel {
		t.Errorf("Model = %q, expected %q", resp.Model, DefaultAnthropicModel)
	}

	if request["model"] != DefaultAnthropicModel {
		t.Errorf("Request model = %v", request["model"])
	}
	if request["max_tokens"] != float64(500) {
		t.Errorf("Request max_tokens = %v, expected 500", request["max_tokens"])
	}
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	server := newMessagesServer(t, http.StatusBadRequest,
		`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`, nil)
	defer server.Close()

	client, err := NewAnthropicClient("test-key", "claude-3-haiku-20240307", server.URL, option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewAnthropicClient returned error: %v", err)
	}

	if _, err := client.Complete(context.Background(), Request{User: "hi", MaxTokens: 10}); err == nil {
		t.Error("Expected error for 400 response")
	}
}

func TestAnthropicCompleteEmptyPrompt(t *testing.T) {
	client, err := NewAnthropicClient("test-key", "", "")
	if err != nil {
		t.Fatalf("NewAnthropicClient returned error: %v", err)
	}
	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Error("Expected error for empty prompt")
	}
}

func TestNewAnthropicClient_NoAPIKey(t *testing.T) {
	if _, err := NewAnthropicClient("", "", ""); err == nil {
		t.Error("Expected error when API key is missing")
	}
}

func TestNewGeminiClient_NoAPIKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "")
	if err == nil || !strings.Contains(err.Error(), "gemini API key is required") {
		t.Errorf("Expected missing key error, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	client, err := NewFromConfig(context.Background(), config.LLM{
		Provider:  "anthropic",
		Anthropic: config.Anthropic{APIKey: "k", Model: "claude-3-haiku-20240307"},
	})
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if client.Model() != "claude-3-haiku-20240307" {
		t.Errorf("Model = %q", client.Model())
	}
	if _, ok := client.(*TracedClient); !ok {
		t.Errorf("Expected traced client, got %T", client)
	}

	if _, err := NewFromConfig(context.Background(), config.LLM{Provider: "openai"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

type stubClient struct {
	resp *Response
	err  error
}

func (s *stubClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return s.resp, s.err
}

func (s *stubClient) Model() string { return "stub" }

func TestTracedClientPassesThrough(t *testing.T) {
	traced := NewTracedClient(&stubClient{resp: &Response{Text: "x", Model: "stub"}})
	resp, err := traced.Complete(context.Background(), Request{User: "u"})
	if err != nil || resp.Text != "x" {
		t.Errorf("Complete = %v, %v", resp, err)
	}

	failing := NewTracedClient(&stubClient{err: errors.New("boom")})
	if _, err := failing.Complete(context.Background(), Request{User: "u"}); err == nil {
		t.Error("Expected error to propagate")
	}
	if failing.Underlying().Model() != "stub" {
		t.Error("Underlying should return the wrapped client")
	}
}

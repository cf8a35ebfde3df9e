package messaging

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/logger"
)

// WebhookClient posts messages to an incoming webhook. The channel is fixed
// by the webhook, so the channel argument of Post is ignored.
type WebhookClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewWebhookClient creates a new webhook client
func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Post sends text and blocks to the webhook
func (c *WebhookClient) Post(ctx context.Context, _ string, text string, blocks []slack.Block) error {
	if c.URL == "" {
		return apperr.ChatAPI("slack webhook URL not configured", nil)
	}

	msg := &slack.WebhookMessage{Text: text}
	if len(blocks) > 0 {
		msg.Blocks = &slack.Blocks{BlockSet: blocks}
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, c.URL, c.HTTPClient, msg); err != nil {
		return apperr.ChatAPI("failed to send slack webhook message", err)
	}
	logger.Info("webhook message posted", "blocks", len(blocks))
	return nil
}

// ValidateWebhookURL validates if a webhook URL is properly formatted
func ValidateWebhookURL(url string) error {
	if url == "" {
		return fmt.Errorf("slack webhook URL cannot be empty")
	}
	if !strings.HasPrefix(url, "https://") || !strings.Contains(url, "hooks.slack.com") {
		return fmt.Errorf("invalid Slack webhook URL format")
	}
	return nil
}

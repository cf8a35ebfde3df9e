package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
)

// SlackSink delivers reports, URL lists and error notifications to one channel
type SlackSink struct {
	poster  Poster
	channel string
	builder *BlockBuilder
}

// NewSlackSink creates a sink posting to channel through poster
func NewSlackSink(poster Poster, channel string, builder *BlockBuilder) *SlackSink {
	return &SlackSink{poster: poster, channel: channel, builder: builder}
}

// NewSinkFromConfig picks the Web API when a bot token is configured and the
// incoming webhook otherwise.
func NewSinkFromConfig(cfg config.Slack, client *Client, taxonomy *categorization.Taxonomy, loc *time.Location) (*SlackSink, error) {
	builder := NewBlockBuilder(taxonomy, loc)
	if cfg.BotToken != "" && client != nil {
		return NewSlackSink(client, cfg.DailyTopicChannel, builder), nil
	}
	if cfg.WebhookURL != "" {
		if err := ValidateWebhookURL(cfg.WebhookURL); err != nil {
			return nil, apperr.Configuration("invalid slack.webhook_url", err)
		}
		return NewSlackSink(NewWebhookClient(cfg.WebhookURL), cfg.DailyTopicChannel, builder), nil
	}
	return nil, apperr.Configuration("neither slack.bot_token nor slack.webhook_url is configured", nil)
}

func postingError(msg string, err error) error {
	e := apperr.ChatAPI(msg, err)
	e.Step = apperr.StepSlackPosting
	return e
}

// PostReport posts the daily report, split over several messages when needed
func (s *SlackSink) PostReport(ctx context.Context, report *core.Report) error {
	messages := s.builder.ReportMessages(report)
	if len(messages) > 1 {
		logger.Warn("report too large for one message, splitting", "messages", len(messages))
	}

	for i, msg := range messages {
		if err := s.poster.Post(ctx, s.channel, msg.Text, msg.Blocks); err != nil {
			return postingError(fmt.Sprintf("failed to post daily report (message %d of %d)", i+1, len(messages)), err)
		}
	}
	logger.Info("daily report posted", "summaries", len(report.Summaries), "messages", len(messages))
	return nil
}

// PostError posts a run failure notification
func (s *SlackSink) PostError(ctx context.Context, rep apperr.Report) error {
	blocks := s.builder.ErrorBlocks(rep)
	if err := s.poster.Post(ctx, s.channel, "❌ Daily Topic Error: "+rep.Message, blocks); err != nil {
		return postingError("failed to post error message", err)
	}
	return nil
}

// PostURLList posts the classified URLs of the run
func (s *SlackSink) PostURLList(ctx context.Context, batch core.CategorizedBatch) error {
	if err := s.poster.Post(ctx, s.channel, URLListText, s.builder.URLListBlocks(batch)); err != nil {
		return postingError("failed to post URL list", err)
	}
	return nil
}

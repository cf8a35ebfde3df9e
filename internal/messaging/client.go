package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/timeutil"
)

// channelIDPattern matches public and private channel ids
var channelIDPattern = regexp.MustCompile(`^[CG][A-Z0-9]{8,}$`)

// Poster publishes Block Kit messages to a channel
type Poster interface {
	Post(ctx context.Context, channel, text string, blocks []slack.Block) error
}

// Client wraps the Slack Web API with channel lookup, paging and retries
type Client struct {
	api            *slack.Client
	historyLimit   int
	rateLimitDelay time.Duration
	maxRetries     int
	backoff        time.Duration

	mu       sync.Mutex
	channels map[string]string
	lastPost time.Time
}

// NewClient creates a Web API client from the slack section of the configuration
func NewClient(cfg config.Slack, options ...slack.Option) *Client {
	if cfg.APIURL != "" {
		apiURL := cfg.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		options = append(options, slack.OptionAPIURL(apiURL))
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 200
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		api:            slack.New(cfg.BotToken, options...),
		historyLimit:   limit,
		rateLimitDelay: cfg.RateLimitDelay,
		maxRetries:     retries,
		backoff:        time.Second,
		channels:       make(map[string]string),
	}
}

// withRetry runs fn until it succeeds, fails permanently or runs out of
// retries. Rate limit answers wait for the advertised interval, other
// transient errors back off exponentially.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		var slackErr slack.SlackErrorResponse
		if errors.As(err, &slackErr) {
			return err
		}
		if attempt == c.maxRetries {
			break
		}

		wait := c.backoff * time.Duration(1<<attempt)
		var rateLimited *slack.RateLimitedError
		if errors.As(err, &rateLimited) {
			wait = rateLimited.RetryAfter
		}
		logger.Warn("slack api call failed, retrying", "op", op, "attempt", attempt+1, "wait", wait.String(), "error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// ResolveChannelID maps a channel name (with or without "#") to its id.
// Values that already look like ids are returned unchanged.
func (c *Client) ResolveChannelID(ctx context.Context, nameOrID string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(nameOrID), "#")
	if channelIDPattern.MatchString(name) {
		return name, nil
	}

	c.mu.Lock()
	id, ok := c.channels[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		Limit:           200,
		ExcludeArchived: true,
	}
	for {
		var (
			channels []slack.Channel
			cursor   string
		)
		err := c.withRetry(ctx, "conversations.list", func() error {
			var err error
			channels, cursor, err = c.api.GetConversationsContext(ctx, params)
			return err
		})
		if err != nil {
			return "", apperr.ChatAPI(fmt.Sprintf("failed to list channels while resolving #%s", name), err)
		}

		for _, ch := range channels {
			if ch.Name == name {
				c.mu.Lock()
				c.channels[name] = ch.ID
				c.mu.Unlock()
				logger.Debug("resolved channel", "name", name, "id", ch.ID)
				return ch.ID, nil
			}
		}

		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	return "", apperr.ChatAPI(fmt.Sprintf("channel #%s not found", name), nil)
}

// History returns the messages of channel posted at or after oldest.
// Attachment titles, links and text are appended to the message text.
func (c *Client) History(ctx context.Context, channel string, oldest time.Time) ([]core.Message, error) {
	channelID, err := c.ResolveChannelID(ctx, channel)
	if err != nil {
		return nil, err
	}

	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    timeutil.ToSlackTimestamp(oldest),
		Limit:     c.historyLimit,
	}

	var messages []core.Message
	for {
		var resp *slack.GetConversationHistoryResponse
		err := c.withRetry(ctx, "conversations.history", func() error {
			var err error
			resp, err = c.api.GetConversationHistoryContext(ctx, params)
			return err
		})
		if err != nil {
			return nil, apperr.ChatAPI(fmt.Sprintf("failed to read history of %s", channel), err)
		}

		for _, msg := range resp.Messages {
			if !timeutil.WithinLookback(msg.Timestamp, oldest) {
				continue
			}
			ts, _ := timeutil.FromSlackTimestamp(msg.Timestamp)
			messages = append(messages, core.Message{
				Timestamp: ts,
				TS:        msg.Timestamp,
				Text:      messageText(msg.Msg),
				User:      msg.User,
				Source:    "slack:" + channelID,
			})
		}

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}

	logger.Info("retrieved channel history", "channel", channel, "messages", len(messages))
	return messages, nil
}

// messageText joins the text of a message with the text of its attachments
func messageText(msg slack.Msg) string {
	parts := []string{msg.Text}
	for _, a := range msg.Attachments {
		for _, s := range []string{a.Title, a.TitleLink, a.Text, a.Fallback, a.FromURL} {
			if strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Post sends a message to channel. Consecutive posts are spaced by the
// configured rate limit delay.
func (c *Client) Post(ctx context.Context, channel, text string, blocks []slack.Block) error {
	channelID, err := c.ResolveChannelID(ctx, channel)
	if err != nil {
		return err
	}

	if err := c.waitForSlot(ctx); err != nil {
		return err
	}

	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		options = append(options, slack.MsgOptionBlocks(blocks...))
	}

	var ts string
	err = c.withRetry(ctx, "chat.postMessage", func() error {
		var err error
		_, ts, err = c.api.PostMessageContext(ctx, channelID, options...)
		return err
	})

	c.mu.Lock()
	c.lastPost = time.Now()
	c.mu.Unlock()

	if err != nil {
		return apperr.ChatAPI(fmt.Sprintf("failed to post message to %s", channel), err)
	}
	logger.Info("message posted", "channel", channel, "ts", ts, "blocks", len(blocks))
	return nil
}

func (c *Client) waitForSlot(ctx context.Context) error {
	c.mu.Lock()
	wait := time.Until(c.lastPost.Add(c.rateLimitDelay))
	c.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// ChannelSource reads the history of one channel
type ChannelSource struct {
	client  *Client
	channel string
}

// NewChannelSource creates a message source over channel
func NewChannelSource(client *Client, channel string) *ChannelSource {
	return &ChannelSource{client: client, channel: channel}
}

// Messages returns the channel messages posted since the given time
func (s *ChannelSource) Messages(ctx context.Context, since time.Time) ([]core.Message, error) {
	return s.client.History(ctx, s.channel, since)
}

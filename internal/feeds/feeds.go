// Package feeds reads RSS/Atom feeds and turns recent items into messages so
// that feed links go through the same URL extraction as chat history.
package feeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
)

const userAgent = "DailyTopic Feed Reader/1.0"

// Source yields the messages posted since a point in time
type Source interface {
	Messages(ctx context.Context, since time.Time) ([]core.Message, error)
}

// ParsedFeed represents a parsed feed with caching metadata
type ParsedFeed struct {
	Title        string
	Items        []*gofeed.Item
	LastModified string
	ETag         string
	NotModified  bool
}

type cacheEntry struct {
	lastModified string
	etag         string
}

// FeedManager fetches feeds with conditional requests
type FeedManager struct {
	client *http.Client
	parser *gofeed.Parser

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFeedManager creates a new feed manager
func NewFeedManager(timeout time.Duration) *FeedManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedManager{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
		cache:  make(map[string]cacheEntry),
	}
}

// FetchFeed fetches and parses feedURL. A 304 answer to the conditional
// headers of the previous fetch yields NotModified.
func (fm *FeedManager) FetchFeed(ctx context.Context, feedURL string) (*ParsedFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	fm.mu.Lock()
	entry := fm.cache[feedURL]
	fm.mu.Unlock()
	if entry.lastModified != "" {
		req.Header.Set("If-Modified-Since", entry.lastModified)
	}
	if entry.etag != "" {
		req.Header.Set("If-None-Match", entry.etag)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := fm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return &ParsedFeed{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	feed, err := fm.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	parsed := &ParsedFeed{
		Title:        feed.Title,
		Items:        feed.Items,
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}

	fm.mu.Lock()
	fm.cache[feedURL] = cacheEntry{lastModified: parsed.LastModified, etag: parsed.ETag}
	fm.mu.Unlock()

	return parsed, nil
}

// itemTime returns the publication time of item, falling back to its update time
func itemTime(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, true
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed, true
	}
	return time.Time{}, false
}

// ItemsToMessages converts the items published at or after since. Items
// without a date or link are dropped.
func ItemsToMessages(feedURL string, feed *ParsedFeed, since time.Time) []core.Message {
	var messages []core.Message
	for _, item := range feed.Items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		published, ok := itemTime(item)
		if !ok || published.Before(since) {
			continue
		}
		messages = append(messages, core.Message{
			Timestamp: published,
			Text:      strings.TrimSpace(item.Title + " " + item.Link),
			User:      feed.Title,
			Source:    "feed:" + feedURL,
		})
	}
	return messages
}

// FeedSource reads a fixed list of feeds
type FeedSource struct {
	manager *FeedManager
	urls    []string
}

// NewFeedSource creates a source over urls
func NewFeedSource(manager *FeedManager, urls []string) *FeedSource {
	return &FeedSource{manager: manager, urls: urls}
}

// Messages returns recent items of every feed. A failing feed is logged and
// skipped; an error is returned only when every feed failed.
func (s *FeedSource) Messages(ctx context.Context, since time.Time) ([]core.Message, error) {
	var (
		messages []core.Message
		failures int
		lastErr  error
	)
	for _, feedURL := range s.urls {
		feed, err := s.manager.FetchFeed(ctx, feedURL)
		if err != nil {
			logger.Warn("feed fetch failed", "feed", feedURL, "error", err.Error())
			failures++
			lastErr = err
			continue
		}
		if feed.NotModified {
			logger.Debug("feed not modified", "feed", feedURL)
			continue
		}
		items := ItemsToMessages(feedURL, feed, since)
		logger.Debug("feed read", "feed", feedURL, "items", len(feed.Items), "recent", len(items))
		messages = append(messages, items...)
	}

	if len(s.urls) > 0 && failures == len(s.urls) {
		return nil, apperr.Step(apperr.StepURLFetch, "all feeds failed", lastErr)
	}
	return messages, nil
}

// MultiSource merges several sources in order. The first source is primary and
// its error aborts the read; failures of the others are logged and skipped.
type MultiSource struct {
	sources []Source
}

// NewMultiSource merges sources; nil entries are ignored
func NewMultiSource(sources ...Source) *MultiSource {
	m := &MultiSource{}
	for _, s := range sources {
		if s != nil {
			m.sources = append(m.sources, s)
		}
	}
	return m
}

// Messages collects the messages of every source
func (m *MultiSource) Messages(ctx context.Context, since time.Time) ([]core.Message, error) {
	var messages []core.Message
	for i, s := range m.sources {
		msgs, err := s.Messages(ctx, since)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			logger.Error("message source failed", err, "source", i)
			continue
		}
		messages = append(messages, msgs...)
	}
	return messages, nil
}

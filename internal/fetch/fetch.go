package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
)

// DefaultUserAgent identifies the bot to the sites it reads.
const DefaultUserAgent = "Mozilla/5.0 (compatible; DailyTopicBot/1.0; +https://github.com/Tedsan/daily-topic)"

// retryableStatus lists the status codes that are retried with backoff.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// fetchableTypes are the content types worth parsing.
var fetchableTypes = []string{"text/html", "text/plain", "application/xhtml"}

// Options configures a Fetcher
type Options struct {
	Timeout      time.Duration // Per request timeout
	ProbeTimeout time.Duration // Timeout of the HEAD probe
	MaxRetries   int           // Retries after the first attempt
	Backoff      time.Duration // Base backoff, doubled per retry
	MaxBytes     int64         // Maximum accepted body size
	UserAgent    string
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		ProbeTimeout: 5 * time.Second,
		MaxRetries:   3,
		Backoff:      time.Second,
		MaxBytes:     10 * 1024 * 1024,
		UserAgent:    DefaultUserAgent,
	}
}

// OptionsFromConfig maps pipeline settings onto fetcher options
func OptionsFromConfig(cfg config.Pipeline) Options {
	opts := DefaultOptions()
	opts.Timeout = cfg.FetchTimeout
	opts.MaxRetries = cfg.FetchRetries
	opts.Backoff = cfg.FetchBackoff
	opts.MaxBytes = cfg.MaxContentBytes
	return opts
}

// Fetcher retrieves raw pages over HTTP
type Fetcher struct {
	client *http.Client
	opts   Options
}

// NewFetcher creates a Fetcher. Zero option values fall back to DefaultOptions.
func NewFetcher(opts Options) *Fetcher {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = def.ProbeTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	return &Fetcher{
		client: &http.Client{},
		opts:   opts,
	}
}

func (f *Fetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")
	return req, nil
}

// Fetch downloads rawURL and returns its body decoded to UTF-8 along with the final URL.
// Transient statuses and network errors are retried with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (core.Page, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := f.opts.Backoff * time.Duration(1<<(attempt-1))
			var retryAfter *retryAfterError
			if errors.As(lastErr, &retryAfter) && retryAfter.wait > wait {
				wait = retryAfter.wait
			}
			logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "wait", wait.String())
			select {
			case <-ctx.Done():
				return core.Page{}, apperr.ContentFetch(rawURL, "fetch cancelled", ctx.Err())
			case <-time.After(wait):
			}
		}

		page, retry, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	var appErr *apperr.Error
	if errors.As(lastErr, &appErr) {
		return core.Page{}, appErr
	}
	return core.Page{}, apperr.ContentFetch(rawURL, "request failed", lastErr)
}

type retryAfterError struct {
	status int
	wait   time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("retryable status %d", e.status)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (core.Page, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := f.newRequest(reqCtx, http.MethodGet, rawURL)
	if err != nil {
		return core.Page{}, false, apperr.ContentFetch(rawURL, "invalid request", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return core.Page{}, false, apperr.ContentFetch(rawURL, "fetch cancelled", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return core.Page{}, true, apperr.ContentFetch(rawURL, "request timed out", err)
		}
		return core.Page{}, true, err
	}
	defer resp.Body.Close()

	if retryableStatus[resp.StatusCode] {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return core.Page{}, true, &retryAfterError{status: resp.StatusCode, wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode >= 400 {
		return core.Page{}, false, apperr.ContentFetch(rawURL, fmt.Sprintf("unexpected status code %d", resp.StatusCode), nil)
	}

	if resp.ContentLength > f.opts.MaxBytes {
		return core.Page{}, false, apperr.ContentFetch(rawURL, fmt.Sprintf("content too large: %d bytes", resp.ContentLength), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return core.Page{}, true, apperr.ContentFetch(rawURL, "request timed out", err)
		}
		return core.Page{}, true, apperr.ContentFetch(rawURL, "failed to read response body", err)
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return core.Page{}, false, apperr.ContentFetch(rawURL, fmt.Sprintf("content too large: over %d bytes", f.opts.MaxBytes), nil)
	}

	return core.Page{
		RequestURL: rawURL,
		FinalURL:   resp.Request.URL.String(),
		HTML:       decodeBody(body, resp.Header.Get("Content-Type")),
		StatusCode: resp.StatusCode,
	}, false, nil
}

// decodeBody converts body to UTF-8 using the declared or sniffed charset.
func decodeBody(body []byte, contentType string) string {
	reader, err := charset.NewReader(strings.NewReader(string(body)), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// IsFetchable probes rawURL with a HEAD request and reports whether it serves parseable text.
func (f *Fetcher) IsFetchable(ctx context.Context, rawURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.ProbeTimeout)
	defer cancel()

	req, err := f.newRequest(reqCtx, http.MethodHead, rawURL)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		logger.Debug("fetchability probe failed", "url", rawURL, "error", err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, t := range fetchableTypes {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/extract"
	"github.com/Tedsan/daily-topic/internal/logger"
)

// SkipReason explains why a URL did not become an article
type SkipReason string

const (
	SkipNotFetchable SkipReason = "not_fetchable"
	SkipFetchFailed  SkipReason = "fetch_failed"
	SkipTooShort     SkipReason = "too_short"
	SkipParseFailed  SkipReason = "parse_failed"
	SkipDuplicate    SkipReason = "duplicate"
	SkipInvalidURL   SkipReason = "invalid_url"
)

// ItemResult is the outcome of processing one URL. Exactly one of Article
// (Skip empty) or Skip is meaningful.
type ItemResult struct {
	URL     string
	Page    core.Page
	Article core.Article
	Skip    SkipReason
	Err     error
}

// OK reports whether the item is still in the pipeline
func (r ItemResult) OK() bool {
	return r.Skip == ""
}

func skipped(url string, reason SkipReason, err error) ItemResult {
	return ItemResult{URL: url, Skip: reason, Err: err}
}

// fetchOne probes and fetches a single URL
func (p *Pipeline) fetchOne(ctx context.Context, url string) ItemResult {
	if p.config.CheckFetchable && p.checker != nil && !p.checker.IsFetchable(ctx, url) {
		return skipped(url, SkipNotFetchable, nil)
	}

	page, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return skipped(url, SkipFetchFailed, err)
	}
	return ItemResult{URL: url, Page: page}
}

// fetchAll fetches urls and returns one result per URL in input order.
// With a concurrency of 1 the URLs are fetched one after another with
// FetchDelay between requests.
func (p *Pipeline) fetchAll(ctx context.Context, urls []string) []ItemResult {
	results := make([]ItemResult, len(urls))

	if p.config.FetchConcurrency <= 1 {
		for i, url := range urls {
			if i > 0 && p.config.FetchDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(p.config.FetchDelay):
				}
			}
			if ctx.Err() != nil {
				results[i] = skipped(url, SkipFetchFailed, ctx.Err())
				continue
			}
			results[i] = p.fetchOne(ctx, url)
			p.progress("   [%d/%d] %s %s\n", i+1, len(urls), itemMark(results[i]), url)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.FetchConcurrency)
	for i, url := range urls {
		g.Go(func() error {
			results[i] = p.fetchOne(gctx, url)
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		p.progress("   [%d/%d] %s %s\n", i+1, len(urls), itemMark(r), r.URL)
	}
	return results
}

// parseAll turns fetched pages into articles. Pages resolving to an already
// seen final URL are dropped as duplicates.
func (p *Pipeline) parseAll(fetched []ItemResult) []ItemResult {
	seen := make(map[string]bool, len(fetched))
	results := make([]ItemResult, 0, len(fetched))
	for _, item := range fetched {
		if !item.OK() {
			results = append(results, item)
			continue
		}

		article, err := p.parser.Parse(item.Page)
		switch {
		case err != nil && extract.IsTooShort(err):
			item = skipped(item.URL, SkipTooShort, err)
		case err != nil:
			item = skipped(item.URL, SkipParseFailed, err)
		case seen[article.URL]:
			item = skipped(item.URL, SkipDuplicate, nil)
		default:
			seen[article.URL] = true
			item.Article = article
		}
		results = append(results, item)
	}
	return results
}

// tally counts skipped items per reason and logs each skip
func tally(items []ItemResult, counts map[SkipReason]int) {
	for _, item := range items {
		if item.OK() {
			continue
		}
		counts[item.Skip]++
		if item.Err != nil {
			logger.Warn("url skipped", "url", item.URL, "reason", string(item.Skip), "error", item.Err.Error())
		} else {
			logger.Info("url skipped", "url", item.URL, "reason", string(item.Skip))
		}
	}
}

func okItems(items []ItemResult) []ItemResult {
	ok := make([]ItemResult, 0, len(items))
	for _, item := range items {
		if item.OK() {
			ok = append(ok, item)
		}
	}
	return ok
}

func itemMark(r ItemResult) string {
	if r.OK() {
		return "✓"
	}
	return "✗"
}

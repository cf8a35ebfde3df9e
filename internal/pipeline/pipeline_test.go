package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/extract"
	"github.com/Tedsan/daily-topic/internal/parser"
)

// fakeSource returns a fixed message list
type fakeSource struct {
	messages []core.Message
	err      error
	since    time.Time
}

func (s *fakeSource) Messages(ctx context.Context, since time.Time) ([]core.Message, error) {
	s.since = since
	return s.messages, s.err
}

// fakeFetcher fails for URLs listed in failures
type fakeFetcher struct {
	mu       sync.Mutex
	failures map[string]bool
	calls    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (core.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.failures[url] {
		return core.Page{}, apperr.ContentFetch(url, "request timed out", context.DeadlineExceeded)
	}
	return core.Page{RequestURL: url, FinalURL: url, HTML: "<html></html>", StatusCode: 200}, nil
}

// fakeParser builds articles from a title table. URLs containing "short"
// are rejected like a body below the minimum length.
type fakeParser struct {
	titles map[string]string
}

func (p *fakeParser) Parse(page core.Page) (core.Article, error) {
	if strings.Contains(page.FinalURL, "short") {
		return core.Article{}, apperr.ContentParsing(page.FinalURL,
			"Content too short: 150 characters (minimum: 200)", extract.ErrContentTooShort)
	}
	title, ok := p.titles[page.FinalURL]
	if !ok {
		title = "Untitled"
	}
	return core.Article{URL: page.FinalURL, Title: title, Content: "Plain text body for testing."}, nil
}

// fakeSummarizer produces one record per category
type fakeSummarizer struct {
	batches []core.CategorizedBatch
}

func (s *fakeSummarizer) GenerateAll(ctx context.Context, batch core.CategorizedBatch) []core.SummaryRecord {
	s.batches = append(s.batches, batch)
	var records []core.SummaryRecord
	for _, code := range batch.Codes() {
		urls := make([]string, 0, len(batch[code]))
		for _, a := range batch[code] {
			urls = append(urls, a.URL)
		}
		records = append(records, core.SummaryRecord{
			ID:           string(code) + "-summary",
			Category:     code,
			Summary:      "summary of " + string(code),
			TokensUsed:   100,
			CostUSD:      0.01,
			ArticleCount: len(urls),
			ArticleURLs:  urls,
		})
	}
	return records
}

// recordingSink keeps everything that was posted
type recordingSink struct {
	reports  []*core.Report
	errors   []apperr.Report
	urlLists []core.CategorizedBatch
	err      error
}

func (s *recordingSink) PostReport(ctx context.Context, report *core.Report) error {
	s.reports = append(s.reports, report)
	return s.err
}

func (s *recordingSink) PostError(ctx context.Context, report apperr.Report) error {
	s.errors = append(s.errors, report)
	return nil
}

func (s *recordingSink) PostURLList(ctx context.Context, batch core.CategorizedBatch) error {
	s.urlLists = append(s.urlLists, batch)
	return nil
}

type fakeStats struct {
	saved [][]core.SummaryRecord
	err   error
}

func (s *fakeStats) Save(records []core.SummaryRecord) error {
	s.saved = append(s.saved, records)
	return s.err
}

type fakeRuns struct {
	runs      []core.RunRecord
	summaries map[string][]core.SummaryRecord
}

func (r *fakeRuns) SaveRun(ctx context.Context, run core.RunRecord) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRuns) SaveSummaries(ctx context.Context, jobID string, records []core.SummaryRecord) error {
	if r.summaries == nil {
		r.summaries = make(map[string][]core.SummaryRecord)
	}
	r.summaries[jobID] = records
	return nil
}

type fakeRenderer struct{}

func (fakeRenderer) Markdown(report *core.Report) string {
	return "# Daily Topic\n"
}

const site = "https://news.example.com/"

// scenarioMessages holds 12 messages with 9 unique valid URLs. The remaining
// links are a duplicate and two excluded hosts.
func scenarioMessages() []core.Message {
	texts := []string{
		"<" + site + "c1-a|AUTOSAR news>",
		"new post " + site + "c1-b",
		"[SDV](" + site + "c1-c)",
		site + "c4-a",
		"read " + site + "c4-b",
		site + "other-a",
		site + "short",
		site + "timeout-a",
		site + "timeout-b",
		"again " + site + "c1-a",
		"http://localhost:8080/admin",
		"https://example.slack.com/archives/C01234567",
	}
	messages := make([]core.Message, len(texts))
	for i, text := range texts {
		messages[i] = core.Message{Text: text, Source: "slack:rss-feed"}
	}
	return messages
}

func scenarioTitles() map[string]string {
	return map[string]string{
		site + "c1-a":    "AUTOSAR update for SDV platforms",
		site + "c1-b":    "SDV and AUTOSAR at the auto show",
		site + "c1-c":    "Adaptive AUTOSAR for SDV",
		site + "c4-a":    "Claude and OpenAI release notes",
		site + "c4-b":    "Anthropic ships a new Claude",
		site + "other-a": "Weekend cooking tips",
	}
}

type fixture struct {
	source     *fakeSource
	fetcher    *fakeFetcher
	summarizer *fakeSummarizer
	sink       *recordingSink
	stats      *fakeStats
	runs       *fakeRuns
	config     *Config
}

func newFixture() *fixture {
	config := DefaultConfig()
	config.FetchDelay = 0
	return &fixture{
		source: &fakeSource{messages: scenarioMessages()},
		fetcher: &fakeFetcher{failures: map[string]bool{
			site + "timeout-a": true,
			site + "timeout-b": true,
		}},
		summarizer: &fakeSummarizer{},
		sink:       &recordingSink{},
		stats:      &fakeStats{},
		runs:       &fakeRuns{},
		config:     config,
	}
}

func (f *fixture) build(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewBuilder(nil).
		WithConfig(f.config).
		WithSource(f.source).
		WithExtractor(parser.NewParser()).
		WithFetcher(f.fetcher).
		WithParser(&fakeParser{titles: scenarioTitles()}).
		WithClassifier(categorization.NewClassifier(nil)).
		WithSummarizer(f.summarizer).
		WithSink(f.sink).
		WithRenderer(fakeRenderer{}).
		WithStats(f.stats).
		WithRunRecorder(f.runs).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return p
}

func TestRunEndToEnd(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
	}{
		{name: "sequential", concurrency: 1},
		{name: "parallel", concurrency: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.config.FetchConcurrency = tt.concurrency
			p := f.build(t)

			result, err := p.Run(context.Background(), RunOptions{})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			stats := result.Stats
			if stats.TotalMessages != 12 {
				t.Errorf("TotalMessages = %d, expected 12", stats.TotalMessages)
			}
			if stats.TotalURLs != 9 {
				t.Errorf("TotalURLs = %d, expected 9", stats.TotalURLs)
			}
			if stats.FetchedPages != 7 {
				t.Errorf("FetchedPages = %d, expected 7", stats.FetchedPages)
			}
			if stats.Skipped[SkipFetchFailed] != 2 {
				t.Errorf("fetch_failed = %d, expected 2", stats.Skipped[SkipFetchFailed])
			}
			if stats.Skipped[SkipTooShort] != 1 {
				t.Errorf("too_short = %d, expected 1", stats.Skipped[SkipTooShort])
			}
			if stats.ParsedArticles != 6 {
				t.Errorf("ParsedArticles = %d, expected 6", stats.ParsedArticles)
			}
			if stats.OtherArticles != 1 {
				t.Errorf("OtherArticles = %d, expected 1", stats.OtherArticles)
			}

			batch := result.Batch
			if len(batch) != 2 {
				t.Fatalf("Expected 2 categories, got %d", len(batch))
			}
			if len(batch[core.CategorySDV]) != 3 {
				t.Errorf("C1 articles = %d, expected 3", len(batch[core.CategorySDV]))
			}
			if len(batch[core.CategoryGenAITech]) != 2 {
				t.Errorf("C4 articles = %d, expected 2", len(batch[core.CategoryGenAITech]))
			}
			if _, ok := batch[core.CategoryOther]; ok {
				t.Error("Catch-all category should be filtered out")
			}

			limited := categorization.LimitPerCategory(batch, 10)
			if limited.Count() != batch.Count() {
				t.Errorf("LimitPerCategory(10) changed the batch: %d -> %d", batch.Count(), limited.Count())
			}

			if len(f.summarizer.batches) != 1 {
				t.Fatalf("Expected 1 summarization call, got %d", len(f.summarizer.batches))
			}
			if len(f.sink.reports) != 1 {
				t.Fatalf("Expected 1 posted report, got %d", len(f.sink.reports))
			}
			report := f.sink.reports[0]
			if report.TotalArticles != 5 {
				t.Errorf("TotalArticles = %d, expected 5", report.TotalArticles)
			}
			if len(report.OtherArticles) != 1 || report.OtherArticles[0].URL != site+"other-a" {
				t.Errorf("Unexpected other articles: %+v", report.OtherArticles)
			}
			if len(f.sink.errors) != 0 {
				t.Errorf("Expected no error notification, got %d", len(f.sink.errors))
			}

			if len(f.stats.saved) != 1 || len(f.stats.saved[0]) != 2 {
				t.Errorf("Expected statistics for 2 summaries, got %v", f.stats.saved)
			}
			if len(f.runs.runs) != 1 {
				t.Fatalf("Expected 1 run record, got %d", len(f.runs.runs))
			}
			run := f.runs.runs[0]
			if run.Status != StatusSuccess || run.JobID != result.JobID {
				t.Errorf("Unexpected run record: %+v", run)
			}
			if run.SkipCounts["fetch_failed"] != 2 || run.SkipCounts["too_short"] != 1 {
				t.Errorf("Unexpected skip counts: %v", run.SkipCounts)
			}
			if len(f.runs.summaries[result.JobID]) != 2 {
				t.Errorf("Expected 2 audited summaries, got %d", len(f.runs.summaries[result.JobID]))
			}
		})
	}
}

func TestRunDropsRedirectsToExcludedHosts(t *testing.T) {
	f := newFixture()
	f.source.messages = append(f.source.messages,
		core.Message{Text: "https://www.google.com/url?url=http%3A%2F%2F192.168.0.1%2Frouter"},
		core.Message{Text: "<https://www.google.com/url?sa=t&url=https%3A%2F%2Fhooks.slack.com%2Fservices%2Fx|hook>"},
	)
	p := f.build(t)

	result, err := p.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Stats.TotalURLs != 9 {
		t.Errorf("TotalURLs = %d, expected 9", result.Stats.TotalURLs)
	}
	if result.Stats.Skipped[SkipInvalidURL] != 2 {
		t.Errorf("invalid_url = %d, expected 2", result.Stats.Skipped[SkipInvalidURL])
	}
	for _, u := range f.fetcher.calls {
		if strings.Contains(u, "192.168.0.1") || strings.Contains(u, "slack.com") {
			t.Errorf("Excluded host was fetched: %s", u)
		}
	}
	if f.runs.runs[0].SkipCounts["invalid_url"] != 2 {
		t.Errorf("Unexpected skip counts: %v", f.runs.runs[0].SkipCounts)
	}
}

func TestRunFetchesInURLOrder(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	if _, err := p.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i := 1; i < len(f.fetcher.calls); i++ {
		if f.fetcher.calls[i-1] > f.fetcher.calls[i] {
			t.Errorf("Fetch order not sorted: %s before %s", f.fetcher.calls[i-1], f.fetcher.calls[i])
		}
	}
}

func TestRunFatalSteps(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(f *fixture)
		expectedStep string
	}{
		{
			name: "source error",
			setup: func(f *fixture) {
				f.source.err = errors.New("channel_not_found")
			},
			expectedStep: apperr.StepURLFetch,
		},
		{
			name: "no urls",
			setup: func(f *fixture) {
				f.source.messages = []core.Message{{Text: "nothing to see"}}
			},
			expectedStep: apperr.StepURLFetch,
		},
		{
			name: "every fetch fails",
			setup: func(f *fixture) {
				for _, m := range scenarioMessages() {
					for _, u := range parser.NewParser().ExtractURLs(m.Text) {
						f.fetcher.failures[u] = true
					}
				}
			},
			expectedStep: apperr.StepContentFetch,
		},
		{
			name: "nothing parses",
			setup: func(f *fixture) {
				f.source.messages = []core.Message{{Text: site + "short"}}
			},
			expectedStep: apperr.StepContentParse,
		},
		{
			name: "only catch-all articles",
			setup: func(f *fixture) {
				f.source.messages = []core.Message{{Text: site + "other-a"}}
			},
			expectedStep: apperr.StepCategorization,
		},
		{
			name: "posting fails",
			setup: func(f *fixture) {
				f.sink.err = errors.New("channel_is_archived")
			},
			expectedStep: apperr.StepSlackPosting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			p := f.build(t)

			result, err := p.Run(context.Background(), RunOptions{})
			if err == nil {
				t.Fatal("Expected an error")
			}

			var appErr *apperr.Error
			if !errors.As(err, &appErr) {
				t.Fatalf("Expected *apperr.Error, got %T", err)
			}
			if appErr.Step != tt.expectedStep {
				t.Errorf("Step = %q, expected %q", appErr.Step, tt.expectedStep)
			}
			if appErr.JobID != result.JobID {
				t.Errorf("JobID = %q, expected %q", appErr.JobID, result.JobID)
			}

			if len(f.sink.errors) != 1 {
				t.Fatalf("Expected 1 error notification, got %d", len(f.sink.errors))
			}
			if f.sink.errors[0].Step != tt.expectedStep {
				t.Errorf("Notified step = %q, expected %q", f.sink.errors[0].Step, tt.expectedStep)
			}

			if len(f.runs.runs) != 1 || f.runs.runs[0].Status != StatusFailed {
				t.Fatalf("Expected a failed run record, got %+v", f.runs.runs)
			}
			if f.runs.runs[0].FailedStep != tt.expectedStep {
				t.Errorf("FailedStep = %q, expected %q", f.runs.runs[0].FailedStep, tt.expectedStep)
			}
		})
	}
}

func TestRunStatisticsFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.stats.err = errors.New("disk full")
	p := f.build(t)

	if _, err := p.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("Statistics failure should not fail the run: %v", err)
	}
	if len(f.sink.reports) != 1 {
		t.Errorf("Expected the report to be posted, got %d", len(f.sink.reports))
	}
}

func TestRunDryRunWritesMarkdown(t *testing.T) {
	f := newFixture()
	p := f.build(t)
	path := filepath.Join(t.TempDir(), "reports", "daily.md")

	result, err := p.Run(context.Background(), RunOptions{DryRun: true, OutputPath: path})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(f.sink.reports) != 0 {
		t.Errorf("Dry run should not post, got %d reports", len(f.sink.reports))
	}
	if result.MarkdownPath != path {
		t.Errorf("MarkdownPath = %q, expected %q", result.MarkdownPath, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if string(data) != "# Daily Topic\n" {
		t.Errorf("Unexpected output %q", string(data))
	}
}

func TestRunDryRunDoesNotNotifyFailures(t *testing.T) {
	f := newFixture()
	f.source.messages = nil
	p := f.build(t)

	if _, err := p.Run(context.Background(), RunOptions{DryRun: true}); err == nil {
		t.Fatal("Expected an error")
	}
	if len(f.sink.errors) != 0 {
		t.Errorf("Dry run should not post error notifications, got %d", len(f.sink.errors))
	}
}

func TestRunEstimateStopsBeforeSummaries(t *testing.T) {
	f := newFixture()
	f.config.Model = "claude-3-haiku-20240307"
	p := f.build(t)

	result, err := p.Run(context.Background(), RunOptions{Estimate: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Estimate == nil {
		t.Fatal("Expected a cost estimate")
	}
	if len(result.Estimate.Categories) != 2 {
		t.Errorf("Estimated categories = %d, expected 2", len(result.Estimate.Categories))
	}
	if len(f.summarizer.batches) != 0 {
		t.Errorf("Estimate should not summarize, got %d calls", len(f.summarizer.batches))
	}
	if len(f.sink.reports) != 0 || len(f.runs.runs) != 0 {
		t.Error("Estimate should neither post nor record a run")
	}
}

func TestRunCategoryFilter(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	result, err := p.Run(context.Background(), RunOptions{Categories: []core.CategoryCode{core.CategoryGenAITech}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Batch) != 1 || len(result.Batch[core.CategoryGenAITech]) != 2 {
		t.Errorf("Expected only C4 with 2 articles, got %v", result.Batch.Codes())
	}
}

func TestRunPostsURLList(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	if _, err := p.Run(context.Background(), RunOptions{PostURLs: true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f.sink.urlLists) != 1 {
		t.Fatalf("Expected 1 url list, got %d", len(f.sink.urlLists))
	}
	listed := f.sink.urlLists[0]
	if listed.Count() != 6 {
		t.Errorf("Listed URLs = %d, expected 6", listed.Count())
	}
	if len(listed[core.CategoryOther]) != 1 {
		t.Errorf("Expected the catch-all article in the list, got %d", len(listed[core.CategoryOther]))
	}
}

func TestRunLookbackOverride(t *testing.T) {
	f := newFixture()
	p := f.build(t)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	if _, err := p.Run(context.Background(), RunOptions{Lookback: 6 * time.Hour}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if expected := now.Add(-6 * time.Hour); !f.source.since.Equal(expected) {
		t.Errorf("since = %v, expected %v", f.source.since, expected)
	}

	if _, err := p.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if expected := now.Add(-24 * time.Hour); !f.source.since.Equal(expected) {
		t.Errorf("since = %v, expected %v", f.source.since, expected)
	}
}

func TestParseAllDropsDuplicateFinalURLs(t *testing.T) {
	p := &Pipeline{parser: &fakeParser{titles: scenarioTitles()}}
	fetched := []ItemResult{
		{URL: "https://short.link/x", Page: core.Page{FinalURL: site + "c1-a"}},
		{URL: site + "c1-a", Page: core.Page{FinalURL: site + "c1-a"}},
		skipped(site+"timeout-a", SkipFetchFailed, errors.New("timeout")),
	}

	results := p.parseAll(fetched)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if !results[0].OK() {
		t.Errorf("First page should be kept, got %s", results[0].Skip)
	}
	if results[1].Skip != SkipDuplicate {
		t.Errorf("Second page skip = %q, expected %q", results[1].Skip, SkipDuplicate)
	}
	if results[2].Skip != SkipFetchFailed {
		t.Errorf("Third item skip = %q, expected %q", results[2].Skip, SkipFetchFailed)
	}
}

func TestBuilderRequiresComponents(t *testing.T) {
	_, err := NewBuilder(nil).Build(context.Background())
	if err == nil {
		t.Fatal("Expected an error for a builder without components")
	}
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("Expected a configuration error, got %v", err)
	}
}

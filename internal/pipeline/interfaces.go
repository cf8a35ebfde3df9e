package pipeline

import (
	"context"
	"time"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/core"
)

// Component interfaces for the daily topic pipeline.
// Each interface is implemented by a package under internal/ and replaced by
// fakes in tests.

// MessageSource returns the messages posted since a point in time
// Implemented by: messaging.ChannelSource, feeds.FeedSource, feeds.MultiSource
type MessageSource interface {
	Messages(ctx context.Context, since time.Time) ([]core.Message, error)
}

// URLExtractor pulls article URLs out of message text
// Implemented by: parser.Parser
type URLExtractor interface {
	ExtractFromMessages(messages []core.Message) []string
	ValidateURL(url string) error
}

// PageFetcher retrieves the raw page behind a URL
// Implemented by: fetch.Fetcher
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (core.Page, error)
}

// FetchabilityChecker probes a URL before it is fetched. Optional.
// Implemented by: fetch.Fetcher
type FetchabilityChecker interface {
	IsFetchable(ctx context.Context, url string) bool
}

// ArticleParser turns a fetched page into an article
// Implemented by: extract.Parser
type ArticleParser interface {
	Parse(page core.Page) (core.Article, error)
}

// ArticleClassifier assigns categories and groups articles
// Implemented by: categorization.Classifier
type ArticleClassifier interface {
	ClassifyBatch(articles []core.Article) core.CategorizedBatch
}

// SummaryGenerator summarizes every category of a batch
// Implemented by: summarize.Generator
type SummaryGenerator interface {
	GenerateAll(ctx context.Context, batch core.CategorizedBatch) []core.SummaryRecord
}

// ReportSink delivers reports and failure notifications to the chat platform
// Implemented by: messaging.SlackSink
type ReportSink interface {
	PostReport(ctx context.Context, report *core.Report) error
	PostError(ctx context.Context, report apperr.Report) error
	PostURLList(ctx context.Context, batch core.CategorizedBatch) error
}

// ReportRenderer renders a report as Markdown for dry runs
// Implemented by: render.Renderer
type ReportRenderer interface {
	Markdown(report *core.Report) string
}

// StatsSink persists the generation statistics of a run
// Implemented by: stats.Recorder
type StatsSink interface {
	Save(records []core.SummaryRecord) error
}

// RunRecorder keeps the audit trail of runs and summaries
// Implemented by: store.Store
type RunRecorder interface {
	SaveRun(ctx context.Context, run core.RunRecord) error
	SaveSummaries(ctx context.Context, jobID string, records []core.SummaryRecord) error
}

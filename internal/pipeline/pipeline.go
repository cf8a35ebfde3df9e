package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/cost"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/parser"
	"github.com/Tedsan/daily-topic/internal/render"
	"github.com/Tedsan/daily-topic/internal/timeutil"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Pipeline orchestrates the daily topic run: collect URLs, fetch and parse
// articles, classify, summarize, report and record statistics.
type Pipeline struct {
	source     MessageSource
	extractor  URLExtractor
	fetcher    PageFetcher
	checker    FetchabilityChecker // Optional
	parser     ArticleParser
	classifier ArticleClassifier
	summarizer SummaryGenerator
	sink       ReportSink     // Optional in dry runs
	renderer   ReportRenderer // Optional, used by dry runs
	stats      StatsSink      // Optional
	runs       RunRecorder    // Optional

	config  *Config
	out     io.Writer
	now     func() time.Time
	closers []io.Closer
}

// Config holds pipeline configuration
type Config struct {
	LookbackHours          int
	MaxArticlesPerCategory int
	FetchConcurrency       int
	FetchDelay             time.Duration
	CheckFetchable         bool
	Location               *time.Location

	// Used by cost estimates
	Model string
	Rates cost.Rates
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		LookbackHours:          24,
		MaxArticlesPerCategory: 10,
		FetchConcurrency:       1,
		FetchDelay:             time.Second,
		CheckFetchable:         false,
		Location:               time.UTC,
	}
}

// ConfigFromSettings maps the application configuration onto pipeline settings
func ConfigFromSettings(cfg *config.Config, loc *time.Location) *Config {
	c := DefaultConfig()
	c.LookbackHours = cfg.Pipeline.LookbackHours
	c.MaxArticlesPerCategory = cfg.Pipeline.MaxArticlesPerCategory
	c.FetchConcurrency = cfg.Pipeline.FetchConcurrency
	c.FetchDelay = cfg.Pipeline.FetchDelay
	c.CheckFetchable = cfg.Pipeline.CheckFetchable
	if loc != nil {
		c.Location = loc
	}

	c.Model = cfg.LLM.Anthropic.Model
	if cfg.LLM.Provider == "gemini" {
		c.Model = cfg.LLM.Gemini.Model
	}
	c.Rates = cost.RatesFor(c.Model, cfg.LLM.InputCostPerToken, cfg.LLM.OutputCostPerToken)
	return c
}

// RunOptions configures a single run
type RunOptions struct {
	DryRun     bool                // Render instead of posting
	OutputPath string              // Dry run output file, stdout when empty
	PostURLs   bool                // Also post the classified URL list
	Estimate   bool                // Stop after classification and print a cost estimate
	Lookback   time.Duration       // Overrides the configured lookback when positive
	Categories []core.CategoryCode // Restricts summarization to these categories when set
}

// Result contains the output of a run
type Result struct {
	JobID        string
	Report       *core.Report
	Batch        core.CategorizedBatch // Limited batch that was summarized
	Markdown     string                // Dry run rendering
	MarkdownPath string
	Estimate     *cost.BatchEstimate
	Stats        ProcessingStats
}

// ProcessingStats tracks pipeline execution metrics
type ProcessingStats struct {
	TotalMessages  int
	TotalURLs      int
	FetchedPages   int
	ParsedArticles int
	OtherArticles  int
	Categories     int
	Summaries      int
	TotalTokens    int
	TotalCostUSD   float64
	Skipped        map[SkipReason]int
	ProcessingTime time.Duration
	StartTime      time.Time
	EndTime        time.Time
}

// SkipCounts returns the skip tally keyed by reason name
func (s ProcessingStats) SkipCounts() map[string]int {
	counts := make(map[string]int, len(s.Skipped))
	for reason, n := range s.Skipped {
		counts[string(reason)] = n
	}
	return counts
}

// Close releases resources opened by the builder
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (p *Pipeline) progress(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Run executes the full pipeline once. Fatal step failures are returned as
// *apperr.Error tagged with the job id and, outside dry runs, posted through
// the report sink.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	start := p.now()
	result := &Result{
		JobID: uuid.NewString(),
		Stats: ProcessingStats{StartTime: start, Skipped: make(map[SkipReason]int)},
	}
	log := logger.With("job_id", result.JobID)
	log.Info().Bool("dry_run", opts.DryRun).Bool("estimate", opts.Estimate).Msg("starting daily topic run")

	err := p.run(ctx, opts, result)

	result.Stats.EndTime = p.now()
	result.Stats.ProcessingTime = result.Stats.EndTime.Sub(start)

	if err != nil {
		err = withJob(err, result.JobID)
		log.Error().Err(err).Str("step", apperr.StepOf(err)).Msg("daily topic run failed")
		p.notifyFailure(ctx, opts, err, result.JobID)
	} else {
		log.Info().
			Int("summaries", result.Stats.Summaries).
			Int("tokens", result.Stats.TotalTokens).
			Str("cost_usd", fmt.Sprintf("%.4f", result.Stats.TotalCostUSD)).
			Dur("elapsed", result.Stats.ProcessingTime).
			Msg("daily topic run completed")
	}

	if !opts.Estimate {
		p.recordRun(ctx, result, err)
	}
	return result, err
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, result *Result) error {
	stats := &result.Stats

	// Step 1: Collect URLs from the message sources
	p.progress("📨 Step 1/7: Collecting URLs...\n")
	urls, err := p.collectURLs(ctx, opts, stats)
	if err != nil {
		return err
	}
	p.progress("   ✓ Found %d URLs in %d messages\n\n", len(urls), stats.TotalMessages)

	// Step 2: Fetch and parse articles
	p.progress("🔍 Step 2/7: Fetching %d articles...\n", len(urls))
	fetched := p.fetchAll(ctx, urls)
	stats.FetchedPages = len(okItems(fetched))
	if stats.FetchedPages == 0 {
		tally(fetched, stats.Skipped)
		return apperr.Step(apperr.StepContentFetch, "No content could be fetched", nil)
	}

	parsed := p.parseAll(fetched)
	tally(parsed, stats.Skipped)
	articles := make([]core.Article, 0, len(parsed))
	for _, item := range okItems(parsed) {
		articles = append(articles, item.Article)
	}
	stats.ParsedArticles = len(articles)
	if len(articles) == 0 {
		return apperr.Step(apperr.StepContentParse, "No articles could be parsed", nil)
	}
	p.progress("   ✓ Parsed %d/%d articles (fetched %d)\n\n", stats.ParsedArticles, stats.TotalURLs, stats.FetchedPages)

	// Step 3: Classify, drop the catch-all and cap each category
	p.progress("📁 Step 3/7: Categorizing articles...\n")
	batch, other := p.categorize(articles, opts.Categories)
	stats.OtherArticles = len(other)
	stats.Categories = len(batch)
	if len(batch) == 0 {
		return apperr.Step(apperr.StepCategorization, "No articles remaining after categorization", nil)
	}
	result.Batch = batch
	p.progress("   ✓ %d articles in %d categories, %d other\n\n", batch.Count(), len(batch), len(other))

	if opts.PostURLs && !opts.DryRun && p.sink != nil {
		listed := make(core.CategorizedBatch, len(batch)+1)
		for code, list := range batch {
			listed[code] = list
		}
		if len(other) > 0 {
			listed[core.CategoryOther] = other
		}
		if err := p.sink.PostURLList(ctx, listed); err != nil {
			logger.Warn("failed to post url list", "error", err.Error())
		}
	}

	if opts.Estimate {
		result.Estimate = cost.EstimateBatchCost(batch, p.config.Model, p.config.Rates)
		p.progress("%s\n", result.Estimate.FormatEstimate())
		return nil
	}

	// Step 4: Summarize each category
	p.progress("📝 Step 4/7: Generating summaries for %d categories...\n", len(batch))
	summaries := p.summarizer.GenerateAll(ctx, batch)
	stats.Summaries = len(summaries)
	if len(summaries) == 0 {
		return apperr.Step(apperr.StepSummaryGeneration, "No summaries could be generated", nil)
	}
	p.progress("   ✓ Generated %d summaries\n\n", len(summaries))

	// Step 5: Build the report
	p.progress("🔨 Step 5/7: Creating report...\n")
	report := core.NewReport(p.now().In(p.config.Location))
	for _, s := range summaries {
		report.AddSummary(s)
	}
	report.AddOtherArticles(other)
	report.ProcessingTime = p.now().Sub(stats.StartTime)
	result.Report = report
	stats.TotalTokens = report.TotalTokens
	stats.TotalCostUSD = report.TotalCostUSD
	logger.Info("report created",
		"articles", report.TotalArticles,
		"tokens", report.TotalTokens,
		"cost_usd", fmt.Sprintf("%.4f", report.TotalCostUSD))
	p.progress("   ✓ %d articles, %d tokens, $%.4f\n\n", report.TotalArticles, report.TotalTokens, report.TotalCostUSD)

	// Step 6: Deliver
	if opts.DryRun {
		p.progress("✍️  Step 6/7: Rendering report (dry run)...\n")
		if err := p.writeMarkdown(opts, result); err != nil {
			return apperr.Step(apperr.StepReportCreation, "Report rendering failed", err)
		}
	} else {
		p.progress("📤 Step 6/7: Posting report...\n")
		if p.sink == nil {
			return apperr.Step(apperr.StepSlackPosting, "No report sink configured", nil)
		}
		if err := p.sink.PostReport(ctx, report); err != nil {
			return apperr.Step(apperr.StepSlackPosting, "Slack posting failed", err)
		}
		p.progress("   ✓ Posted\n\n")
	}

	// Step 7: Statistics never fail the run
	p.progress("📊 Step 7/7: Saving statistics...\n")
	p.saveStatistics(ctx, result.JobID, summaries)
	return nil
}

func (p *Pipeline) collectURLs(ctx context.Context, opts RunOptions, stats *ProcessingStats) ([]string, error) {
	now := p.now().In(p.config.Location)
	since := timeutil.LookbackStart(now, p.config.LookbackHours)
	if opts.Lookback > 0 {
		since = now.Add(-opts.Lookback)
	}

	messages, err := p.source.Messages(ctx, since)
	if err != nil {
		return nil, apperr.Step(apperr.StepURLFetch, "URL fetch failed", err)
	}
	stats.TotalMessages = len(messages)

	urls := p.validURLs(parser.NormalizeAll(p.extractor.ExtractFromMessages(messages)), stats)
	stats.TotalURLs = len(urls)
	if len(urls) == 0 {
		return nil, apperr.Step(apperr.StepURLFetch, "No URLs found in messages", nil)
	}

	parser.CheckExpectedCount(len(urls), p.config.MaxArticlesPerCategory)
	logger.Info("urls collected", "messages", len(messages), "urls", len(urls), "since", since.Format(time.RFC3339))
	return urls, nil
}

// validURLs checks normalized URLs again. Unwrapping a redirect can expose
// a target that extraction never saw, such as a private address.
func (p *Pipeline) validURLs(urls []string, stats *ProcessingStats) []string {
	valid := make([]string, 0, len(urls))
	for _, u := range urls {
		if err := p.extractor.ValidateURL(u); err != nil {
			stats.Skipped[SkipInvalidURL]++
			logger.Warn("url skipped", "url", u, "reason", string(SkipInvalidURL), "error", err.Error())
			continue
		}
		valid = append(valid, u)
	}
	return valid
}

// categorize returns the limited batch without the catch-all category and the
// catch-all articles separately.
func (p *Pipeline) categorize(articles []core.Article, only []core.CategoryCode) (core.CategorizedBatch, []core.ClassifiedArticle) {
	batch := p.classifier.ClassifyBatch(articles)
	other := batch[core.CategoryOther]

	filtered := categorization.FilterCatchAll(batch)
	if len(only) > 0 {
		for code := range filtered {
			if !slices.Contains(only, code) {
				delete(filtered, code)
			}
		}
	}
	return categorization.LimitPerCategory(filtered, p.config.MaxArticlesPerCategory), other
}

func (p *Pipeline) writeMarkdown(opts RunOptions, result *Result) error {
	if p.renderer == nil {
		return fmt.Errorf("no renderer configured")
	}
	result.Markdown = p.renderer.Markdown(result.Report)

	if opts.OutputPath == "" {
		p.progress("\n%s\n", result.Markdown)
		return nil
	}

	path, err := render.WriteReportToFile(result.Markdown, opts.OutputPath)
	if err != nil {
		return err
	}
	result.MarkdownPath = path
	p.progress("   ✓ Saved to %s\n\n", path)
	return nil
}

func (p *Pipeline) saveStatistics(ctx context.Context, jobID string, summaries []core.SummaryRecord) {
	if p.stats != nil {
		if err := p.stats.Save(summaries); err != nil {
			logger.Warn("statistics saving failed", "error", err.Error())
		}
	}
	if p.runs != nil {
		if err := p.runs.SaveSummaries(ctx, jobID, summaries); err != nil {
			logger.Warn("summary audit failed", "error", err.Error())
		}
	}
}

func (p *Pipeline) notifyFailure(ctx context.Context, opts RunOptions, err error, jobID string) {
	if opts.DryRun || p.sink == nil {
		return
	}
	if postErr := p.sink.PostError(ctx, apperr.NewReport(err, jobID)); postErr != nil {
		logger.Error("failed to post error notification", postErr, "job_id", jobID)
	}
}

func (p *Pipeline) recordRun(ctx context.Context, result *Result, runErr error) {
	if p.runs == nil {
		return
	}

	stats := result.Stats
	record := core.RunRecord{
		JobID:        result.JobID,
		StartedAt:    stats.StartTime,
		FinishedAt:   stats.EndTime,
		Status:       StatusSuccess,
		URLCount:     stats.TotalURLs,
		ArticleCount: stats.ParsedArticles,
		SkipCounts:   stats.SkipCounts(),
		TotalTokens:  stats.TotalTokens,
		TotalCostUSD: stats.TotalCostUSD,
	}
	if runErr != nil {
		record.Status = StatusFailed
		record.FailedStep = apperr.StepOf(runErr)
		record.Error = runErr.Error()
	}

	// The run context may already be cancelled
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := p.runs.SaveRun(ctx, record); err != nil {
		logger.Warn("failed to record run", "job_id", result.JobID, "error", err.Error())
	}
}

// withJob tags err with jobID, wrapping foreign errors as a pipeline error
func withJob(err error, jobID string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.WithJob(jobID)
	}
	return apperr.Step("", "Daily topic run failed", err).WithJob(jobID)
}

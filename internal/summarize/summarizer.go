package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/cost"
	"github.com/Tedsan/daily-topic/internal/llm"
	"github.com/Tedsan/daily-topic/internal/logger"
)

// Options configures the generator behavior
type Options struct {
	// Model settings
	MaxTokens   int
	Temperature float64

	// Directory holding summarization_<code>.txt overrides, optional
	PromptDir string

	// Per-token prices used for the cost of each summary
	Rates cost.Rates

	// Retry settings
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		MaxTokens:   1000,
		Temperature: 0.3,
		MaxRetries:  2,
		RetryDelay:  time.Second,
	}
}

// OptionsFromConfig maps the llm section onto generator options. Rates come from
// the configured per-token costs, or the pricing table of model when both are zero.
func OptionsFromConfig(cfg config.LLM, model string) Options {
	opts := DefaultOptions()
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	opts.Temperature = cfg.Temperature
	opts.PromptDir = cfg.PromptDir
	opts.Rates = cost.RatesFor(model, cfg.InputCostPerToken, cfg.OutputCostPerToken)
	return opts
}

// Totals are the running usage counters of a generator
type Totals struct {
	Summaries    int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Generator produces one summary per category batch
type Generator struct {
	client   llm.Client
	taxonomy *categorization.Taxonomy
	options  Options
	now      func() time.Time

	mu     sync.Mutex
	totals Totals
}

// NewGenerator creates a generator. A nil taxonomy uses the defaults.
func NewGenerator(client llm.Client, taxonomy *categorization.Taxonomy, options Options) *Generator {
	if taxonomy == nil {
		taxonomy = categorization.DefaultTaxonomy()
	}
	if options.MaxTokens <= 0 {
		options.MaxTokens = DefaultOptions().MaxTokens
	}
	if options.MaxRetries < 0 {
		options.MaxRetries = 0
	}
	return &Generator{
		client:   client,
		taxonomy: taxonomy,
		options:  options,
		now:      time.Now,
	}
}

// systemPrompt returns the prompt template for code, preferring a file in PromptDir
func (g *Generator) systemPrompt(code core.CategoryCode) string {
	if tmpl := LoadPromptTemplate(g.options.PromptDir, code); tmpl != "" {
		return tmpl
	}
	cat, ok := g.taxonomy.Get(code)
	if !ok {
		cat = categorization.Category{Code: code, Label: string(code)}
	}
	return BuildSystemPrompt(cat)
}

// Generate summarizes the articles of one category in a single model call
func (g *Generator) Generate(ctx context.Context, code core.CategoryCode, articles []core.ClassifiedArticle) (core.SummaryRecord, error) {
	if len(articles) == 0 {
		return core.SummaryRecord{}, apperr.Summarizer(fmt.Sprintf("no articles to summarize for %s", code), nil)
	}

	content := CombineArticles(articles)
	req := llm.Request{
		System:      g.systemPrompt(code),
		User:        BuildUserPrompt(content, code),
		MaxTokens:   g.options.MaxTokens,
		Temperature: g.options.Temperature,
	}

	logger.Info("generating summary",
		"category", string(code),
		"articles", len(articles),
		"content_length", len([]rune(content)))

	var (
		resp *llm.Response
		err  error
	)
	for attempt := 0; attempt <= g.options.MaxRetries; attempt++ {
		resp, err = g.client.Complete(ctx, req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < g.options.MaxRetries {
			logger.Warn("summary request failed, retrying", "category", string(code), "attempt", attempt+1, "error", err.Error())
			time.Sleep(g.options.RetryDelay * time.Duration(attempt+1))
		}
	}
	if err != nil {
		return core.SummaryRecord{}, apperr.Summarizer(fmt.Sprintf("failed to generate summary for %s", code), err)
	}

	parsed, err := ParseSummaryResponse(resp.Text, code)
	if err != nil {
		return core.SummaryRecord{}, apperr.Summarizer(fmt.Sprintf("invalid summary response for %s", code), err)
	}

	urls := make([]string, len(articles))
	for i, a := range articles {
		urls[i] = a.URL
	}

	model := resp.Model
	if model == "" {
		model = g.client.Model()
	}

	record := core.SummaryRecord{
		ID:           uuid.NewString(),
		GeneratedAt:  g.now(),
		Category:     parsed.Category,
		Summary:      parsed.Summary,
		KeyPoints:    parsed.KeyPoints,
		Confidence:   parsed.Confidence,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TokensUsed:   resp.InputTokens + resp.OutputTokens,
		CostUSD:      g.options.Rates.Calculate(resp.InputTokens, resp.OutputTokens),
		Model:        model,
		ArticleCount: len(articles),
		ArticleURLs:  urls,
	}

	g.mu.Lock()
	g.totals.Summaries++
	g.totals.InputTokens += record.InputTokens
	g.totals.OutputTokens += record.OutputTokens
	g.totals.CostUSD += record.CostUSD
	g.mu.Unlock()

	logger.Info("summary generated",
		"category", string(code),
		"tokens", record.TokensUsed,
		"cost_usd", fmt.Sprintf("%.4f", record.CostUSD),
		"confidence", record.Confidence)

	return record, nil
}

// GenerateAll summarizes every non catch-all category of batch in priority
// order. Categories whose generation fails are logged and skipped.
func (g *Generator) GenerateAll(ctx context.Context, batch core.CategorizedBatch) []core.SummaryRecord {
	var (
		records []core.SummaryRecord
		failed  []string
	)
	for _, code := range batch.Codes() {
		if code == core.CategoryOther || len(batch[code]) == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		record, err := g.Generate(ctx, code, batch[code])
		if err != nil {
			logger.Error("summary generation failed", err, "category", string(code))
			failed = append(failed, string(code))
			continue
		}
		records = append(records, record)
	}

	if len(failed) > 0 {
		logger.Warn("some categories were not summarized", "categories", strings.Join(failed, ","))
	}
	return records
}

// Totals returns the usage accumulated since the generator was created
func (g *Generator) Totals() Totals {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totals
}

// Model returns the model name of the underlying client
func (g *Generator) Model() string {
	return g.client.Model()
}

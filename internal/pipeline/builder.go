package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/extract"
	"github.com/Tedsan/daily-topic/internal/feeds"
	"github.com/Tedsan/daily-topic/internal/fetch"
	"github.com/Tedsan/daily-topic/internal/llm"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/messaging"
	"github.com/Tedsan/daily-topic/internal/parser"
	"github.com/Tedsan/daily-topic/internal/render"
	"github.com/Tedsan/daily-topic/internal/stats"
	"github.com/Tedsan/daily-topic/internal/store"
	"github.com/Tedsan/daily-topic/internal/summarize"
	"github.com/Tedsan/daily-topic/internal/timeutil"
)

// Builder helps construct a fully configured Pipeline. Components that are not
// set explicitly are created from the application settings.
type Builder struct {
	settings       *config.Config
	config         *Config
	components     Pipeline
	skipSummarizer bool
	out            io.Writer
}

// NewBuilder creates a new pipeline builder. settings may be nil when every
// component is supplied explicitly.
func NewBuilder(settings *config.Config) *Builder {
	return &Builder{settings: settings, out: io.Discard}
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithSource sets the message source
func (b *Builder) WithSource(source MessageSource) *Builder {
	b.components.source = source
	return b
}

// WithExtractor sets the URL extractor
func (b *Builder) WithExtractor(extractor URLExtractor) *Builder {
	b.components.extractor = extractor
	return b
}

// WithFetcher sets the page fetcher. A fetcher that also implements
// FetchabilityChecker is used for probing.
func (b *Builder) WithFetcher(fetcher PageFetcher) *Builder {
	b.components.fetcher = fetcher
	return b
}

// WithParser sets the article parser
func (b *Builder) WithParser(parser ArticleParser) *Builder {
	b.components.parser = parser
	return b
}

// WithClassifier sets the classifier
func (b *Builder) WithClassifier(classifier ArticleClassifier) *Builder {
	b.components.classifier = classifier
	return b
}

// WithSummarizer sets the summary generator
func (b *Builder) WithSummarizer(summarizer SummaryGenerator) *Builder {
	b.components.summarizer = summarizer
	return b
}

// WithoutSummarizer builds a pipeline that can only produce cost estimates
func (b *Builder) WithoutSummarizer() *Builder {
	b.skipSummarizer = true
	return b
}

// WithSink sets the report sink
func (b *Builder) WithSink(sink ReportSink) *Builder {
	b.components.sink = sink
	return b
}

// WithRenderer sets the dry run renderer
func (b *Builder) WithRenderer(renderer ReportRenderer) *Builder {
	b.components.renderer = renderer
	return b
}

// WithStats sets the statistics sink
func (b *Builder) WithStats(sink StatsSink) *Builder {
	b.components.stats = sink
	return b
}

// WithRunRecorder sets the audit recorder
func (b *Builder) WithRunRecorder(recorder RunRecorder) *Builder {
	b.components.runs = recorder
	return b
}

// WithOutput sets where progress and dry run output are written
func (b *Builder) WithOutput(out io.Writer) *Builder {
	if out == nil {
		out = io.Discard
	}
	b.out = out
	return b
}

// Build constructs the Pipeline
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	p := b.components
	p.out = b.out
	p.now = time.Now

	if b.settings != nil {
		if err := b.fromSettings(ctx, &p); err != nil {
			for _, c := range p.closers {
				c.Close()
			}
			return nil, err
		}
	}

	p.config = b.config
	if p.config == nil {
		if b.settings != nil {
			loc, _ := timeutil.Location(b.settings.App.Timezone)
			p.config = ConfigFromSettings(b.settings, loc)
		} else {
			p.config = DefaultConfig()
		}
	}
	if p.config.Location == nil {
		p.config.Location = time.UTC
	}

	if p.checker == nil {
		if checker, ok := p.fetcher.(FetchabilityChecker); ok {
			p.checker = checker
		}
	}

	switch {
	case p.source == nil:
		return nil, apperr.Configuration("message source is required", nil)
	case p.extractor == nil:
		return nil, apperr.Configuration("url extractor is required", nil)
	case p.fetcher == nil:
		return nil, apperr.Configuration("page fetcher is required", nil)
	case p.parser == nil:
		return nil, apperr.Configuration("article parser is required", nil)
	case p.classifier == nil:
		return nil, apperr.Configuration("classifier is required", nil)
	case p.summarizer == nil && !b.skipSummarizer:
		return nil, apperr.Configuration("summary generator is required", nil)
	}

	return &p, nil
}

// fromSettings fills every component that was not set explicitly
func (b *Builder) fromSettings(ctx context.Context, p *Pipeline) error {
	cfg := b.settings

	loc, err := timeutil.Location(cfg.App.Timezone)
	if err != nil {
		return apperr.Configuration(fmt.Sprintf("invalid timezone %q", cfg.App.Timezone), err)
	}

	taxonomy, err := categorization.LoadTaxonomy(cfg.Categories.File)
	if err != nil {
		return apperr.Configuration("failed to load categories", err)
	}

	var slackClient *messaging.Client
	if cfg.Slack.BotToken != "" {
		slackClient = messaging.NewClient(cfg.Slack)
	}

	if p.source == nil {
		var sources []feeds.Source
		if slackClient != nil {
			sources = append(sources, messaging.NewChannelSource(slackClient, cfg.Slack.RSSFeedChannel))
		}
		if len(cfg.Sources.Feeds) > 0 {
			sources = append(sources, feeds.NewFeedSource(feeds.NewFeedManager(cfg.Pipeline.FetchTimeout), cfg.Sources.Feeds))
		}
		if len(sources) == 0 {
			return apperr.Configuration("no message source: set slack.bot_token or sources.feeds", nil)
		}
		p.source = feeds.NewMultiSource(sources...)
	}

	if p.extractor == nil {
		p.extractor = parser.NewParser()
	}
	if p.fetcher == nil {
		p.fetcher = fetch.NewFetcher(fetch.OptionsFromConfig(cfg.Pipeline))
	}
	if p.parser == nil {
		p.parser = extract.NewParser(cfg.Pipeline.MinContentLength)
	}
	if p.classifier == nil {
		p.classifier = categorization.NewClassifier(taxonomy)
	}

	if p.summarizer == nil && !b.skipSummarizer {
		client, err := llm.NewFromConfig(ctx, cfg.LLM)
		if err != nil {
			return apperr.Configuration("failed to create llm client", err)
		}
		p.summarizer = summarize.NewGenerator(client, taxonomy, summarize.OptionsFromConfig(cfg.LLM, client.Model()))
	}

	if p.sink == nil {
		sink, err := messaging.NewSinkFromConfig(cfg.Slack, slackClient, taxonomy, loc)
		if err != nil {
			logger.Warn("report sink unavailable, only dry runs are possible", "error", err.Error())
		} else {
			p.sink = sink
		}
	}

	if p.renderer == nil {
		p.renderer = render.NewRenderer(taxonomy, loc)
	}

	if cfg.Stats.Enabled {
		if p.stats == nil {
			p.stats = stats.NewRecorder(cfg.Stats.Dir, loc)
		}
		if p.runs == nil && cfg.Stats.Database != "" {
			db, err := store.NewStore(cfg.Stats.Database)
			if err != nil {
				logger.Warn("run audit store unavailable", "path", cfg.Stats.Database, "error", err.Error())
			} else {
				p.runs = db
				p.closers = append(p.closers, db)
			}
		}
	}
	return nil
}

package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/pipeline"
	"github.com/Tedsan/daily-topic/internal/render"
	"github.com/Tedsan/daily-topic/internal/timeutil"
	"github.com/Tedsan/daily-topic/internal/tui"
)

// NewRunCmd creates the run command executing the pipeline once
func NewRunCmd() *cobra.Command {
	var (
		dryRun     bool
		preview    bool
		browse     bool
		lookback   time.Duration
		output     string
		postURLs   bool
		estimate   bool
		categories []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and post today's digest once",
		Long: `Run executes the whole pipeline once:

  1. Collect URLs from the chat channel (and configured feeds)
  2. Fetch and parse the articles
  3. Categorize them and cap each category
  4. Summarize every category
  5. Build the report
  6. Post it (or render it in dry runs)
  7. Save statistics

Fatal failures are posted to the digest channel as an error notification.
Test mode (app.test_mode or environment "test") always implies --dry-run.

Examples:
  # Post today's digest
  daily-topic run

  # Look back 48 hours and only print the result
  daily-topic run --dry-run --lookback 48h

  # Show what summarization would cost without calling the model
  daily-topic run --estimate

  # Only summarize the generative AI categories
  daily-topic run --category C4,C5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, err := parseCategoryCodes(categories)
			if err != nil {
				return err
			}
			opts := pipeline.RunOptions{
				DryRun:     dryRun || preview || browse,
				OutputPath: output,
				PostURLs:   postURLs,
				Estimate:   estimate,
				Lookback:   lookback,
				Categories: codes,
			}
			return runOnce(cmd.Context(), cmd.OutOrStdout(), opts, preview, browse)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the digest instead of posting it")
	cmd.Flags().BoolVar(&preview, "preview", false, "Render a styled terminal preview (implies --dry-run)")
	cmd.Flags().BoolVar(&browse, "browse", false, "Browse the result interactively (implies --dry-run)")
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "How far back to read messages (default from config: 24h)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the dry run digest to this file instead of stdout")
	cmd.Flags().BoolVar(&postURLs, "post-urls", false, "Also post the categorized URL list")
	cmd.Flags().BoolVar(&estimate, "estimate", false, "Stop after categorization and print a cost estimate")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Only summarize these categories (e.g. C1,C4)")

	return cmd
}

func runOnce(ctx context.Context, out io.Writer, opts pipeline.RunOptions, preview, browse bool) error {
	cfg, err := loadConfig(!opts.DryRun && !opts.Estimate)
	if err != nil {
		return err
	}
	if cfg.IsTest() && !opts.DryRun {
		logger.Info("test mode enabled, running as dry run")
		opts.DryRun = true
	}

	if browse {
		out = io.Discard
	}
	builder := pipeline.NewBuilder(cfg).WithOutput(out)
	if opts.Estimate {
		builder.WithoutSummarizer()
	}
	if preview {
		renderer, err := newPreviewRenderer(cfg)
		if err != nil {
			return err
		}
		builder.WithRenderer(renderer)
	}

	p, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("daily topic run %s failed: %w", result.JobID, err)
	}

	if browse && result.Report != nil {
		taxonomy, err := categorization.LoadTaxonomy(cfg.Categories.File)
		if err != nil {
			return err
		}
		return tui.Browse(result.Report, taxonomy)
	}
	return nil
}

// previewRenderer shows dry run reports as styled terminal output
type previewRenderer struct {
	renderer *render.Renderer
	width    int
}

func newPreviewRenderer(cfg *config.Config) (*previewRenderer, error) {
	taxonomy, err := categorization.LoadTaxonomy(cfg.Categories.File)
	if err != nil {
		return nil, err
	}
	loc, err := timeutil.Location(cfg.App.Timezone)
	if err != nil {
		return nil, err
	}
	return &previewRenderer{renderer: render.NewRenderer(taxonomy, loc), width: 100}, nil
}

func (p *previewRenderer) Markdown(report *core.Report) string {
	return p.renderer.Preview(report, p.width)
}

// parseCategoryCodes validates codes given on the command line
func parseCategoryCodes(values []string) ([]core.CategoryCode, error) {
	var codes []core.CategoryCode
	for _, v := range values {
		code := core.CategoryCode(strings.ToUpper(strings.TrimSpace(v)))
		if code == "" {
			continue
		}
		known := false
		for _, c := range core.PriorityOrder {
			if c == code && c != core.CategoryOther {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown category %q (expected one of C1-C5)", v)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/extract"
	"github.com/Tedsan/daily-topic/internal/fetch"
	"github.com/Tedsan/daily-topic/internal/parser"
	"github.com/Tedsan/daily-topic/internal/render"
)

// NewClassifyCmd creates the classify command for checking category assignments
func NewClassifyCmd() *cobra.Command {
	var showScores bool

	cmd := &cobra.Command{
		Use:   "classify URL...",
		Short: "Fetch articles and show the category they would get",
		Long: `Classify fetches each URL, extracts the readable content and runs the
keyword classifier on it, the same way the daily run does. Nothing is
summarized or posted.

Useful when tuning the keyword lists of a categories file.

Examples:
  daily-topic classify https://example.com/post
  daily-topic classify --scores https://example.com/a https://example.com/b`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.Context(), cmd.OutOrStdout(), args, showScores)
		},
	}

	cmd.Flags().BoolVar(&showScores, "scores", false, "Show the score of every category")

	return cmd
}

func runClassify(ctx context.Context, out io.Writer, urls []string, showScores bool) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	taxonomy, err := categorization.LoadTaxonomy(cfg.Categories.File)
	if err != nil {
		return err
	}

	validator := parser.NewParser()
	fetcher := fetch.NewFetcher(fetch.OptionsFromConfig(cfg.Pipeline))
	articleParser := extract.NewParser(cfg.Pipeline.MinContentLength)
	classifier := categorization.NewClassifier(taxonomy)

	var rows [][]string
	failed := 0
	for _, raw := range urls {
		u := parser.NormalizeURL(raw)
		if err := validator.ValidateURL(u); err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", raw, err)
			failed++
			continue
		}

		page, err := fetcher.Fetch(ctx, u)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", u, err)
			failed++
			continue
		}
		article, err := articleParser.Parse(page)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", u, err)
			failed++
			continue
		}

		classified := classifier.ClassifyArticle(article)
		rows = append(rows, []string{
			string(classified.Category),
			taxonomy.Label(classified.Category),
			fmt.Sprintf("%.3f", classified.Confidence),
			truncate(article.Title, 60),
		})

		if showScores {
			var scoreRows [][]string
			for _, s := range classifier.Scores(article) {
				scoreRows = append(scoreRows, []string{string(s.Code), taxonomy.Label(s.Code), fmt.Sprintf("%.3f", s.Score)})
			}
			fmt.Fprintf(out, "%s\n%s\n\n", article.URL, render.Table([]string{"Code", "Label", "Score"}, scoreRows))
		}
	}

	if len(rows) > 0 {
		fmt.Fprintln(out, render.Table([]string{"Category", "Label", "Confidence", "Title"}, rows))
	}
	if failed == len(urls) {
		return fmt.Errorf("no article could be classified")
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

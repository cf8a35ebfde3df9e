package handlers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tedsan/daily-topic/internal/render"
	"github.com/Tedsan/daily-topic/internal/store"
	"github.com/Tedsan/daily-topic/internal/timeutil"
)

// NewStatsCmd creates the stats command
func NewStatsCmd() *cobra.Command {
	var (
		month  string
		recent int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token usage and cost from the audit database",
		Long: `Stats reads the run audit database (stats.database) and prints the monthly
usage per category together with the most recent runs.

Examples:
  # Current month
  daily-topic stats

  # A past month with the last 20 runs
  daily-topic stats --month 2025-01 --runs 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd.OutOrStdout(), month, recent)
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default: current month)")
	cmd.Flags().IntVar(&recent, "runs", 5, "Number of recent runs to list")

	return cmd
}

func runStats(ctx context.Context, out io.Writer, month string, recent int) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loc, err := timeutil.Location(cfg.App.Timezone)
	if err != nil {
		return err
	}

	target := timeutil.Now(loc)
	if month != "" {
		target, err = time.ParseInLocation("2006-01", month, loc)
		if err != nil {
			return fmt.Errorf("invalid month %q, expected YYYY-MM: %w", month, err)
		}
	}

	db, err := store.NewStore(cfg.Stats.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	totals, err := db.MonthlyTotals(ctx, target)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📊 %s: %d runs (%d failed), %d summaries, %d articles, %d tokens, $%.4f\n\n",
		totals.Month, totals.Runs, totals.FailedRuns, totals.Summaries, totals.Articles, totals.Tokens, totals.CostUSD)

	if len(totals.ByCategory) > 0 {
		var rows [][]string
		for _, c := range totals.ByCategory {
			rows = append(rows, []string{
				string(c.Category),
				fmt.Sprintf("%d", c.Summaries),
				fmt.Sprintf("%d", c.Articles),
				fmt.Sprintf("%d", c.Tokens),
				fmt.Sprintf("$%.4f", c.CostUSD),
			})
		}
		fmt.Fprintln(out, render.Table([]string{"Category", "Summaries", "Articles", "Tokens", "Cost"}, rows))
	}

	if recent <= 0 {
		return nil
	}
	runs, err := db.RecentRuns(ctx, recent)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	var rows [][]string
	for _, r := range runs {
		step := r.FailedStep
		if step == "" {
			step = "-"
		}
		rows = append(rows, []string{
			timeutil.FormatDate(r.StartedAt.In(loc)) + " " + r.StartedAt.In(loc).Format("15:04"),
			r.Status,
			step,
			fmt.Sprintf("%d", r.URLCount),
			fmt.Sprintf("%d", r.ArticleCount),
			fmt.Sprintf("%d", r.TotalTokens),
			fmt.Sprintf("$%.4f", r.TotalCostUSD),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, render.Table([]string{"Started", "Status", "Failed step", "URLs", "Articles", "Tokens", "Cost"}, rows))
	return nil
}

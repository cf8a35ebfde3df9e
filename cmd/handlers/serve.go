package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/pipeline"
	"github.com/Tedsan/daily-topic/internal/timeutil"
)

// NewServeCmd creates the serve command running the pipeline on a schedule
func NewServeCmd() *cobra.Command {
	var (
		cronSpec string
		runNow   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the digest on a cron schedule",
		Long: `Serve keeps the process alive and runs the pipeline on a cron schedule
evaluated in the configured timezone (app.timezone, default Asia/Tokyo).

A run that is still in progress when the next one is due is not overlapped;
the next tick is skipped instead. SIGINT or SIGTERM stop the scheduler after
the current run has finished.

Examples:
  # Use schedule.cron from the config file (default "0 8 * * *")
  daily-topic serve

  # Run on weekdays at 07:30 and once right away
  daily-topic serve --cron "30 7 * * 1-5" --run-now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cronSpec, runNow)
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "", "Cron expression (default from config: schedule.cron)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Run once immediately after starting")

	return cmd
}

func runServe(ctx context.Context, cronSpec string, runNow bool) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if cronSpec == "" {
		cronSpec = cfg.Schedule.Cron
	}

	loc, err := timeutil.Location(cfg.App.Timezone)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cronLogger := cron.PrintfLogger(logger.Get())
	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	job := func() { scheduledRun(ctx, cfg) }
	id, err := scheduler.AddFunc(cronSpec, job)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronSpec, err)
	}

	scheduler.Start()
	logger.Info("scheduler started",
		"cron", cronSpec,
		"timezone", loc.String(),
		"next_run", scheduler.Entry(id).Next.Format("2006-01-02 15:04:05 MST"))

	if runNow {
		go scheduler.Entry(id).WrappedJob.Run()
	}

	<-ctx.Done()
	logger.Info("shutting down scheduler")
	<-scheduler.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}

// scheduledRun builds a fresh pipeline per run so statistics never leak
// between runs. Failures are logged; the error notification is posted by the pipeline.
func scheduledRun(ctx context.Context, cfg *config.Config) {
	if ctx.Err() != nil {
		return
	}

	p, err := pipeline.NewBuilder(cfg).WithOutput(io.Discard).Build(ctx)
	if err != nil {
		logger.Error("failed to build pipeline", err)
		return
	}
	defer p.Close()

	result, err := p.Run(ctx, pipeline.RunOptions{DryRun: cfg.IsTest()})
	if err != nil {
		logger.Error("scheduled run failed", err, "job_id", result.JobID)
		return
	}
	logger.Info("scheduled run finished", "job_id", result.JobID, "summaries", result.Stats.Summaries)
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trendlens/tiktok-crawler/internal/app"
	"github.com/trendlens/tiktok-crawler/internal/scheduler"
)

type crawlFlags struct {
	mode       string
	identityID int64
	identities int
	maxTargets int
	maxVideos  int
	budget     int
	recrawl    bool
	schedule   string
}

// newCrawlCmd creates the 'crawl' subcommand: one batch run, or a cron
// loop of batch runs when --schedule is set.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl batch over the due target accounts",
		Long: `Allocates crawler identities, assigns each a batch of due target
accounts and walks every target through the full collection ritual.
With --schedule the batch repeats on a cron expression until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "", "collection mode: light, heavy or both (defaults from config)")
	cmd.Flags().Int64Var(&flags.identityID, "identity", 0, "pin the run to one crawler identity by id")
	cmd.Flags().IntVar(&flags.identities, "identities", 0, "number of identities to run in parallel")
	cmd.Flags().IntVar(&flags.maxTargets, "max-targets", 0, "per-identity target batch size")
	cmd.Flags().IntVar(&flags.maxVideos, "max-videos", 0, "newest videos collected per target")
	cmd.Flags().IntVar(&flags.budget, "budget", 0, "process-wide target budget, 0 for unlimited")
	cmd.Flags().BoolVar(&flags.recrawl, "recrawl", false, "admit already-crawled targets into the batch")
	cmd.Flags().StringVar(&flags.schedule, "schedule", "", "cron expression; repeat the batch until interrupted")

	return cmd
}

func runCrawl(cmd *cobra.Command, flags crawlFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	applyOverrides(a, flags)

	opts := scheduler.Options{
		Identities: a.Config.Crawl.Identities,
		MaxTargets: a.Config.Crawl.MaxTargets,
		Budget:     a.Config.Crawl.Budget,
		Recrawl:    a.Config.Crawl.Recrawl,
	}
	if flags.identityID > 0 {
		id := flags.identityID
		opts.IdentityID = &id
	}

	sched := a.Scheduler()

	if flags.schedule != "" {
		return runOnSchedule(cmd.Context(), a, sched, opts, flags.schedule)
	}

	report, err := runOnce(cmd.Context(), a, sched, opts)
	if err != nil {
		return err
	}
	if report.TargetsProcessed == 0 {
		return fmt.Errorf("no targets processed")
	}
	return nil
}

// applyOverrides lets flags win over file/env configuration for this run.
func applyOverrides(a *app.App, flags crawlFlags) {
	if flags.mode != "" {
		a.Config.Crawl.Mode = flags.mode
	}
	if flags.identities > 0 {
		a.Config.Crawl.Identities = flags.identities
	}
	if flags.maxTargets > 0 {
		a.Config.Crawl.MaxTargets = flags.maxTargets
	}
	if flags.maxVideos > 0 {
		a.Config.Crawl.MaxVideos = flags.maxVideos
	}
	if flags.budget > 0 {
		a.Config.Crawl.Budget = flags.budget
	}
	if flags.recrawl {
		a.Config.Crawl.Recrawl = true
	}
}

func runOnce(ctx context.Context, a *app.App, sched *scheduler.Scheduler, opts scheduler.Options) (scheduler.Report, error) {
	report, err := sched.Run(ctx, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		return report, fmt.Errorf("run crawl: %w", err)
	}
	a.Logger.Info("crawl batch finished",
		zap.Int("identities", report.IdentitiesUsed),
		zap.Int("targets", report.TargetsProcessed),
		zap.Int("done", report.Done),
		zap.Int("retryable", report.Retryable),
		zap.Int("removed", report.Removed),
		zap.Int("empty", report.Empty),
		zap.Int("heavy_saved", report.HeavySaved),
		zap.Int("light_saved", report.LightSaved),
	)
	return report, nil
}

// runOnSchedule repeats the batch on a cron expression. Overlapping runs
// are skipped: one browser fleet at a time.
func runOnSchedule(ctx context.Context, a *app.App, sched *scheduler.Scheduler, opts scheduler.Options, spec string) error {
	running := make(chan struct{}, 1)

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		select {
		case running <- struct{}{}:
		default:
			a.Logger.Warn("previous crawl batch still running; skipping tick")
			return
		}
		defer func() { <-running }()

		if _, err := runOnce(ctx, a, sched, opts); err != nil {
			a.Logger.Error("scheduled crawl batch failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	a.Logger.Info("crawl schedule started", zap.String("spec", spec))
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

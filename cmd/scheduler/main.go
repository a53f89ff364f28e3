package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/app"
	"github.com/segyhp/rental-billing/internal/config"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/scheduler"
)

func main() {
	runOnce := flag.String("run", "", "run a single job by name and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Bootstrap("scheduler").Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format).Named("scheduler")
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	deps, err := app.New(initCtx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close()

	runner := scheduler.NewRunner(deps.Locker, deps.Metrics, log, cfg.Scheduler.LockTTL)
	jobs := scheduler.Jobs(deps.Jobs, cfg.Scheduler)

	if *runOnce != "" {
		job, ok := scheduler.Find(jobs, *runOnce)
		if !ok {
			log.Fatal("unknown job", zap.String("job", *runOnce))
		}
		report, err := runner.Run(ctx, job)
		if err != nil {
			log.Fatal("job failed", zap.String("job", job.Name), zap.Error(err))
		}
		if report != nil {
			log.Info("job finished", zap.String("job", job.Name),
				zap.Int("processed", report.Processed),
				zap.Int("skipped", report.Skipped),
				zap.Int("failed", report.Failed))
		}
		return
	}

	cronLogger := scheduler.NewCronLogger(log)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.GetLocation()),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if err := runner.Schedule(ctx, c, jobs); err != nil {
		log.Fatal("failed to schedule jobs", zap.Error(err))
	}

	c.Start()
	log.Info("scheduler started", zap.Int("jobs", len(c.Entries())), zap.String("timezone", cfg.Scheduler.Timezone))

	<-ctx.Done()
	log.Info("shutting down scheduler")

	// Wait for running jobs to finish.
	<-c.Stop().Done()
	log.Info("scheduler stopped")
}

// Command scheduler triggers the API's batch jobs on their cron schedules.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ghostwriter/internal/config"
	"ghostwriter/internal/middleware"
	"ghostwriter/internal/scheduler"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.CronSecret == "" {
		log.Fatal("CRON_SECRET must be set for the scheduler")
	}

	logger := middleware.Logger.With(slog.String("component", "scheduler"))
	slog.SetDefault(logger)

	jobs := scheduler.Jobs(cfg)
	trigger := scheduler.NewTrigger(cfg.SchedulerAPIURL, cfg.CronSecret, nil)
	c, err := scheduler.New(jobs, trigger, logger)
	if err != nil {
		log.Fatalf("Failed to build schedule: %v", err)
	}

	c.Start()
	logger.Info("scheduler started", slog.String("api", cfg.SchedulerAPIURL), slog.Int("jobs", len(jobs)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("scheduler stopping, waiting for running jobs")
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
}

/**
 * @description
 * Entry point for the billing scheduler. It is a non-HTTP, long-running
 * process that triggers billing sweeps on the billing service via cron.
 */
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nannygold/billing-service/internal/config"
	"github.com/nannygold/billing-service/internal/scheduler"
	"github.com/nannygold/billing-service/pkg/billingclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadSchedulerConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		logger.Error("invalid business timezone", "timezone", cfg.BusinessTimezone, "error", err)
		os.Exit(1)
	}

	client := billingclient.NewClient(cfg.BillingServiceURL, cfg.InternalAPIKey)
	jobs := scheduler.NewJobs(client, logger, loc)
	cronScheduler := scheduler.NewScheduler(jobs, logger, *cfg)

	registered := cronScheduler.Start()
	logger.Info("scheduler started", "jobs", registered, "timezone", cfg.BusinessTimezone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := cronScheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}

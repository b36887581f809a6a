// Worker deletes refresh credentials that expired more than CREDENTIAL_RETENTION ago,
// every PURGE_INTERVAL, until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"crm-tenancy/backend/internal/app"
	"crm-tenancy/backend/internal/config"
	"crm-tenancy/backend/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: "crm-auth-worker"})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error("worker: startup failed", logger.Err(err))
		os.Exit(1)
	}
	defer a.Close()

	log.Info("worker: purging expired refresh credentials",
		zap.Duration("interval", cfg.PurgeEvery()), zap.Duration("retention", cfg.Retention()))
	_ = a.Purger.Run(ctx, cfg.PurgeEvery())
	log.Info("worker: stopped")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ContentRewriter/internal/app"
	"ContentRewriter/internal/config"
	"ContentRewriter/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}

	if *once {
		res, err := application.RunBatchOnce(ctx)
		if err != nil || !res.Success {
			logger.Error("batch run failed", "error", err, "result", res)
			os.Exit(1)
		}
		logger.Info("batch run finished", "processed", res.ItemsProcessed, "failed", res.ItemsFailed)
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}

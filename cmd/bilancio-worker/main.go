package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bilancio/internal/cli"
	"bilancio/internal/log"
	"bilancio/internal/worker"
)

func main() {
	cfg, logger := cli.MustBootstrap()
	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting bilancio-worker", "interval", cfg.PriceWatchInterval)

	res, err := cli.OpenBackends(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backends", log.FieldError, err)
		os.Exit(1)
	}
	if res.Prices == nil {
		logger.Error("Price watcher needs a price source, set PRICE_BACKEND")
		_ = res.Cleanup()
		os.Exit(1)
	}

	amqpClient, err := cli.OpenAMQP(cfg, logger)
	if err != nil || amqpClient == nil {
		logger.Error("Price watcher needs AMQP, set AMQP_URL", log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	watcher := worker.NewPriceWatcher(res.Store, res.Prices, amqpClient, cfg.PriceWatchInterval, logger)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Price watcher stopped", log.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
}

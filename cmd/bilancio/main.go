package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	"bilancio/internal/log"
)

func main() {
	cfg, logger := cli.MustBootstrap()

	res, err := cli.OpenBackends(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backends", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Initialized backends",
		"data", cfg.DataBackend, "rates", cfg.RateBackend, "prices", cfg.PriceBackend)

	opts := apphttp.Options{
		CacheSize: cfg.ReportCacheSize,
		CacheTTL:  cfg.ReportCacheTTL,
		Logger:    logger,
	}
	if p, ok := res.Store.(apphttp.Pinger); ok {
		opts.Ready = p
	}
	srv := apphttp.NewServer(":"+cfg.Port, cli.NewDashboardService(cfg, res, logger), opts)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	amqpClient, err := cli.OpenAMQP(cfg, logger)
	if err != nil {
		// Reports still work without invalidation, only the TTL bounds staleness.
		logger.Warn("AMQP unavailable, cached reports expire by TTL only", log.FieldError, err)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	if amqpClient != nil {
		go func() {
			if err := amqpClient.Consume(ctx, srv.Invalidate); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Invalidation consumer stopped", log.FieldError, err)
			}
		}()
	}

	logger.Info("Starting bilancio server", "port", cfg.Port, "cache_size", cfg.ReportCacheSize)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

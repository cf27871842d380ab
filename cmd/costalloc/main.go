package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"costalloc/internal/cache"
	"costalloc/internal/cli"
	apphttp "costalloc/internal/http"
	"costalloc/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)

	svc, err := cli.BuildServices(logger, cfg, res)
	if err != nil {
		logger.Error("Failed to initialize services", log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	caches := cache.NewManager(logger)
	caches.Register(svc.Sessions.Cleaner())
	if res.Cache != nil {
		res.Cache.Register(caches)
	}
	caches.StartCleanup(10 * time.Minute)

	opts := apphttp.Options{
		Addr:        ":" + cfg.Port,
		Allocations: svc.Allocation,
		Sessions:    svc.Sessions,
		Cascade:     svc.Cascade,
		Logger:      logger,
	}
	if p, ok := res.Store.(apphttp.Pinger); ok {
		opts.Ready = p
	}
	srv := apphttp.NewServer(opts)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if err := svc.Close(); err != nil {
			logger.Warn("AMQP close error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting costalloc server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"financials", cfg.FinancialsSource,
		"cascade_mode", cfg.CascadeMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"costalloc/internal/amqp"
	"costalloc/internal/cli"
	"costalloc/internal/log"
	"costalloc/internal/services"
	"costalloc/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the cascade worker")
		os.Exit(1)
	}

	logger.Info("Starting cascade-worker", "max_hops", cfg.CascadeMaxHops)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	}()

	cascade := services.NewCascadeService(res.Store, res.Store, cfg.CascadeMaxHops, logger)
	w := worker.NewCascadeWorker(cascade, logger)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	// Consumers stop on context cancellation; resources are closed after
	// the consume loop returns.
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	err = client.ConsumeCascadeRequests(ctx, w.HandleCascadeRequest)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	<-done
	logger.Info("Cascade worker stopped")
}

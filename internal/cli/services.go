package cli

import (
	"fmt"

	"costalloc/internal/allocation"
	"costalloc/internal/amqp"
	"costalloc/internal/backend"
	"costalloc/internal/config"
	"costalloc/internal/log"
	"costalloc/internal/services"
)

// Services is the wired application layer shared by the server and the
// admin CLI.
type Services struct {
	Allocation *services.AllocationService
	Cascade    *services.CascadeService
	Sessions   *services.SessionManager
	// AMQP is set in amqp cascade mode.
	AMQP *amqp.Client
}

// BuildServices wires the services on top of a backend. The cascade mode
// decides what runs after a save: a published request (amqp), an inline
// cascade (sync) or nothing (off).
func BuildServices(logger *log.Logger, cfg *config.Config, res *backend.BackendResult) (*Services, error) {
	engine := allocation.NewEngine(cfg.Epsilon())
	cascade := services.NewCascadeService(res.Store, res.Store, cfg.CascadeMaxHops, logger)

	out := &Services{Cascade: cascade}

	var trigger services.CascadeTrigger
	switch cfg.CascadeMode {
	case config.CascadeAMQP:
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize AMQP client: %w", err)
		}
		out.AMQP = client
		trigger = services.AMQPTrigger{Client: client}
	case config.CascadeSync:
		trigger = cascade
	}

	out.Allocation = services.NewAllocationService(res.Deps(), services.AllocationOptions{
		Engine:           &engine,
		FetchConcurrency: cfg.FinancialsFetchConcurrent,
		Logger:           logger,
		Trigger:          trigger,
		Cascade:          cascade,
	})
	out.Sessions = services.NewSessionManager(out.Allocation, cfg.SessionTTL, logger)

	logger.Info("Services ready",
		"cascade_mode", cfg.CascadeMode,
		"max_hops", cfg.CascadeMaxHops,
		"epsilon", engine.Epsilon().String())
	return out, nil
}

// Close releases the AMQP connection, if any.
func (s *Services) Close() error {
	if s.AMQP != nil {
		return s.AMQP.Close()
	}
	return nil
}

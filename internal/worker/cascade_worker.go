package worker

import (
	"context"
	"fmt"
	"time"

	"costalloc/internal/amqp"
	"costalloc/internal/cache"
	"costalloc/internal/core"
	"costalloc/internal/log"
)

// Cascader runs one cascade. Implemented by services.CascadeService.
type Cascader interface {
	Cascade(ctx context.Context, from core.Period, t core.ProjectType) ([]core.Period, error)
}

// CascadeWorker handles cascade requests delivered over AMQP.
type CascadeWorker struct {
	cascader Cascader
	logger   *log.Logger
	// Message IDs already handled, so a redelivery after a lost ack is
	// not run twice.
	seen *cache.LRUCache[time.Time]
}

func NewCascadeWorker(cascader Cascader, logger *log.Logger) *CascadeWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &CascadeWorker{
		cascader: cascader,
		logger:   logger.WithComponent(log.ComponentWorker),
		seen:     cache.NewLRUCache[time.Time](4096, time.Hour),
	}
}

// HandleCascadeRequest runs the cascade a message asks for. Malformed
// requests are logged and dropped; a failed cascade returns an error so the
// message is requeued.
func (w *CascadeWorker) HandleCascadeRequest(ctx context.Context, msg *amqp.CascadeRequestMessage) error {
	if _, dup := w.seen.Get(msg.ID); dup {
		w.logger.InfoContext(ctx, "Skipping already processed cascade request", "message_id", msg.ID)
		return nil
	}

	from, t, err := msg.Target()
	if err != nil {
		w.logger.ErrorContext(ctx, "Dropping invalid cascade request",
			"message_id", msg.ID,
			log.FieldError, err)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing cascade request",
		"message_id", msg.ID,
		log.FieldPeriod, from.String(),
		log.FieldProjectType, string(t),
		"queued_for", time.Since(msg.Timestamp).String())

	written, err := w.cascader.Cascade(ctx, from, t)
	if err != nil {
		return fmt.Errorf("cascade %s %s: %w", from, t, err)
	}
	w.seen.Set(msg.ID, time.Now())

	w.logger.InfoContext(ctx, "Cascade request completed",
		"message_id", msg.ID,
		log.FieldHops, len(written))
	return nil
}

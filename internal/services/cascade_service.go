package services

import (
	"context"
	"fmt"
	"sync"

	"costalloc/internal/allocation"
	"costalloc/internal/amqp"
	"costalloc/internal/core"
	"costalloc/internal/log"
	"costalloc/internal/ports"
)

// CascadeService propagates a saved period's cumulative overrun into the
// following periods of the same year.
type CascadeService struct {
	categories ports.CategoryRegistry
	periods    ports.PeriodStore
	maxHops    int
	logger     *log.Logger
	recordMu   *sync.Mutex
}

func NewCascadeService(categories ports.CategoryRegistry, periods ports.PeriodStore, maxHops int, logger *log.Logger) *CascadeService {
	if logger == nil {
		logger = log.Discard()
	}
	if maxHops <= 0 {
		maxHops = allocation.DefaultMaxHops
	}
	return &CascadeService{
		categories: categories,
		periods:    periods,
		maxHops:    maxHops,
		logger:     logger.WithComponent(log.ComponentCascade),
		recordMu:   &sync.Mutex{},
	}
}

// Cascade rewrites the carry chain of type t after period from and returns
// the periods written. Nothing is written when from has no saved figures.
func (s *CascadeService) Cascade(ctx context.Context, from core.Period, t core.ProjectType) ([]core.Period, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidProjectType, t)
	}

	cats, err := s.categories.Categories(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}

	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	origin, err := s.periods.GetPeriodRecord(ctx, from)
	if core.IsNotFound(err) {
		s.logger.InfoContext(ctx, "Nothing to cascade, period has no record",
			log.FieldPeriod, from.String(),
			log.FieldProjectType, string(t))
		return nil, nil
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "cascade read", Period: from, Err: err}
	}
	carry := allocation.StartingCarry(origin, t, cats)
	if len(carry) == 0 {
		return nil, nil
	}

	periods := from.FollowingInYear(s.maxHops)
	records := make(map[core.Period]*core.PeriodRecord, len(periods))
	for _, p := range periods {
		rec, err := s.periods.GetPeriodRecord(ctx, p)
		if core.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, &core.PersistenceError{Op: "cascade read", Period: p, Err: err}
		}
		records[p] = rec
	}

	planned := allocation.PlanCascade(allocation.CascadeInput{
		From:       from,
		Type:       t,
		Categories: cats,
		Carry:      carry,
		Records:    records,
		MaxHops:    s.maxHops,
	})

	written := make([]core.Period, 0, len(planned))
	for _, rec := range planned {
		if err := s.periods.PutPeriodRecord(ctx, rec); err != nil {
			return written, &core.PersistenceError{Op: "cascade write", Period: rec.Period, Err: err}
		}
		written = append(written, rec.Period)
	}

	s.logger.InfoContext(ctx, "Cascade completed",
		log.FieldPeriod, from.String(),
		log.FieldProjectType, string(t),
		log.FieldHops, len(written))
	return written, nil
}

// TriggerCascade runs the cascade in the caller's goroutine.
func (s *CascadeService) TriggerCascade(ctx context.Context, from core.Period, t core.ProjectType) error {
	_, err := s.Cascade(ctx, from, t)
	return err
}

// AMQPTrigger publishes cascade requests for a worker to run.
type AMQPTrigger struct {
	Client *amqp.Client
}

func (a AMQPTrigger) TriggerCascade(ctx context.Context, from core.Period, t core.ProjectType) error {
	if a.Client == nil {
		return fmt.Errorf("AMQP client not available")
	}
	return a.Client.PublishCascadeRequest(ctx, from, t)
}

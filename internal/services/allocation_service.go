package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"costalloc/internal/allocation"
	"costalloc/internal/core"
	"costalloc/internal/log"
	"costalloc/internal/ports"
)

const defaultFetchConcurrency = 8

// Deps are the ports the allocation services read from and write to.
type Deps struct {
	Categories ports.CategoryRegistry
	Projects   ports.ProjectDirectory
	Financials ports.FinancialsProvider
	FixedCosts ports.FixedCostTotals
	Budgets    ports.BudgetSource
	Periods    ports.PeriodStore
	Ledgers    ports.LedgerStore
}

// DepsFromStore wires every port to one store.
func DepsFromStore(s ports.Store) Deps {
	return Deps{
		Categories: s,
		Projects:   s,
		Financials: s,
		FixedCosts: s,
		Budgets:    s,
		Periods:    s,
		Ledgers:    s,
	}
}

// CascadeTrigger starts a cascade after a successful save.
type CascadeTrigger interface {
	TriggerCascade(ctx context.Context, from core.Period, t core.ProjectType) error
}

type AllocationOptions struct {
	// Engine defaults to one with allocation.DefaultEpsilon.
	Engine           *allocation.Engine
	FetchConcurrency int
	Logger           *log.Logger
	// Trigger is optional; nil disables automatic cascades.
	Trigger CascadeTrigger
	// Cascade, when set, shares its record lock with the allocation service
	// so saves and cascades in this process never interleave their writes.
	Cascade *CascadeService
}

// AllocationService builds worksheets from the ports and persists them.
type AllocationService struct {
	deps        Deps
	engine      allocation.Engine
	concurrency int
	resolver    *allocation.LineItemResolver
	trigger     CascadeTrigger
	logger      *log.Logger
	events      *log.StructuredLogger
	recordMu    *sync.Mutex
}

func NewAllocationService(deps Deps, opts AllocationOptions) *AllocationService {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAllocation)
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}
	engine := allocation.NewEngine(allocation.DefaultEpsilon)
	if opts.Engine != nil {
		engine = *opts.Engine
	}

	mu := &sync.Mutex{}
	if opts.Cascade != nil {
		mu = opts.Cascade.recordMu
	}
	return &AllocationService{
		deps:        deps,
		engine:      engine,
		concurrency: opts.FetchConcurrency,
		resolver:    allocation.NewLineItemResolver(logger),
		trigger:     opts.Trigger,
		logger:      logger,
		events:      log.NewStructuredLogger(logger),
		recordMu:    mu,
	}
}

// Engine returns the recompute engine used by the service.
func (s *AllocationService) Engine() allocation.Engine {
	return s.engine
}

// Load assembles and computes the worksheet of period p and type t.
func (s *AllocationService) Load(ctx context.Context, p core.Period, t core.ProjectType) (*allocation.Worksheet, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidProjectType, t)
	}

	var (
		cats       []core.Category
		financials []core.ProjectFinancials
		fixedTotal = decimal.Zero
		budgets    map[string]decimal.Decimal
		current    *core.PeriodRecord
		previous   *core.PeriodRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = s.deps.Categories.Categories(gctx, t)
		if err != nil {
			return fmt.Errorf("read categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		financials, err = s.loadFinancials(gctx, p, t)
		return err
	})
	g.Go(func() error {
		total, err := s.deps.FixedCosts.FixedCostTotal(gctx, p, t)
		switch {
		case core.IsNotFound(err):
		case err != nil:
			return fmt.Errorf("read fixed cost total: %w", err)
		default:
			fixedTotal = total
		}
		return nil
	})
	g.Go(func() error {
		if s.deps.Budgets == nil {
			return nil
		}
		var err error
		budgets, err = s.deps.Budgets.ApprovedBudgets(gctx, p, t)
		if err != nil && !core.IsNotFound(err) {
			return fmt.Errorf("read approved budgets: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		current, err = s.readRecord(gctx, p)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.readRecord(gctx, p.Previous())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := allocation.BuildInput{
		Period:      p,
		Type:        t,
		Categories:  cats,
		Record:      current,
		Budgets:     budgets,
		FixedTotal:  fixedTotal,
		PctDefaults: allocation.PctDefaults(previous, t),
	}
	ws := allocation.NewWorksheet(in, financials, s.engine)

	s.logger.DebugContext(ctx, "Worksheet loaded",
		log.FieldPeriod, p.String(),
		log.FieldProjectType, string(t),
		log.FieldRows, len(ws.Rows),
		"visible_projects", len(ws.Projects))
	return ws, nil
}

// loadFinancials fetches the financials of every project of t with bounded
// concurrency. Projects without financials for p are left out.
func (s *AllocationService) loadFinancials(ctx context.Context, p core.Period, t core.ProjectType) ([]core.ProjectFinancials, error) {
	projects, err := s.deps.Projects.Projects(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}

	results := make([]*core.ProjectFinancials, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, project := range projects {
		g.Go(func() error {
			f, err := s.deps.Financials.Financials(gctx, project.ID, p)
			if core.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read financials of %s: %w", project.ID, err)
			}
			f.ProjectID, f.Period = project.ID, p
			results[i] = &f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]core.ProjectFinancials, 0, len(results))
	for _, f := range results {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *AllocationService) readRecord(ctx context.Context, p core.Period) (*core.PeriodRecord, error) {
	rec, err := s.deps.Periods.GetPeriodRecord(ctx, p)
	if core.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read period record %s: %w", p, err)
	}
	return rec, nil
}

// Save persists a worksheet: the current period's record, the carry-over
// into the next period's record, then the funded amounts into each visible
// project's ledger. Writes are sequential and not rolled back; the first
// failure is returned as a *core.PersistenceError. The returned worksheet is
// the recomputed state that was written.
func (s *AllocationService) Save(ctx context.Context, ws *allocation.Worksheet) (*allocation.Worksheet, error) {
	ws = ws.Clone()
	p, t := ws.Period, ws.Type
	next := p.Next()

	s.recordMu.Lock()
	dropped, err := s.saveRecords(ctx, ws)
	s.recordMu.Unlock()
	if err != nil {
		s.events.LogError(ctx, "Allocation save failed", err, log.ComponentAllocation, log.OpSave,
			log.NewFields().WithAllocation(p.String(), string(t)))
		return nil, err
	}

	if err := s.writeLedgers(ctx, ws, dropped); err != nil {
		perr := &core.PersistenceError{Op: "write ledgers", Period: p, Err: err}
		s.events.LogError(ctx, "Ledger write-back incomplete", perr, log.ComponentAllocation, log.OpWrite,
			log.NewFields().WithAllocation(p.String(), string(t)))
		return ws, perr
	}

	s.events.LogSaved(ctx, p.String(), string(t), len(ws.StandardRows()))
	s.logger.DebugContext(ctx, "Carry-over written", log.FieldPeriod, next.String())

	if s.trigger != nil {
		if err := s.trigger.TriggerCascade(ctx, p, t); err != nil {
			// The save itself succeeded.
			s.logger.ErrorContext(ctx, "Failed to trigger cascade",
				log.FieldPeriod, p.String(),
				log.FieldProjectType, string(t),
				log.FieldError, err)
		}
	}
	return ws, nil
}

// saveRecords writes the current and next period records. It returns the
// projects of the worksheet's type that had funded amounts stored but are no
// longer visible; their amounts are removed from the record.
func (s *AllocationService) saveRecords(ctx context.Context, ws *allocation.Worksheet) ([]string, error) {
	p, t := ws.Period, ws.Type

	projects, err := s.deps.Projects.Projects(ctx, t)
	if err != nil {
		return nil, &core.PersistenceError{Op: "read projects", Period: p, Err: err}
	}
	current, err := s.readRecord(ctx, p)
	if err != nil {
		return nil, &core.PersistenceError{Op: "read current record", Period: p, Err: err}
	}
	if current == nil {
		current = core.NewPeriodRecord(p)
	}
	nextRec, err := s.readRecord(ctx, p.Next())
	if err != nil {
		return nil, &core.PersistenceError{Op: "read next record", Period: p.Next(), Err: err}
	}

	if nextRec == nil {
		nextRec = core.NewPeriodRecord(p.Next())
	}

	// owned holds every project whose funded amounts this save rewrites.
	owned := make(map[string]bool, len(projects)+len(ws.Projects))
	visible := make(map[string]bool, len(ws.Projects))
	for _, pr := range projects {
		owned[pr.ID] = true
	}
	for _, pf := range ws.Projects {
		owned[pf.ProjectID] = true
		visible[pf.ProjectID] = true
	}
	dropped := make(map[string]bool)

	totalOverrun := decimal.Zero
	for _, row := range ws.StandardRows() {
		// The debt rolling in is what the store holds now, not what was
		// read when the worksheet was opened.
		row.PreviousOverrun = nil
		if st, ok := current.State(row.Cat.ID, t); ok {
			row.PreviousOverrun = core.CloneAmounts(st.PerProjectOverrun)
		}
		s.engine.RecomputeRow(row, ws.Projects)

		for _, id := range applyCurrent(current, row, t, owned) {
			if !visible[id] {
				dropped[id] = true
			}
		}
		applyNext(nextRec, row, t, FullCarry(row))
		totalOverrun = totalOverrun.Add(row.Funding.OverrunThisQuarter)
	}
	current.SetTotalOverrun(t, totalOverrun)

	if err := s.deps.Periods.PutPeriodRecord(ctx, current); err != nil {
		return nil, &core.PersistenceError{Op: "write current record", Period: p, Err: err}
	}
	if err := s.deps.Periods.PutPeriodRecord(ctx, nextRec); err != nil {
		return nil, &core.PersistenceError{Op: "write next record", Period: nextRec.Period, Err: err}
	}

	out := make([]string, 0, len(dropped))
	for id := range dropped {
		out = append(out, id)
	}
	sort.Strings(out)
	if len(out) > 0 {
		s.logger.InfoContext(ctx, "Cleared funded amounts of projects no longer visible",
			log.FieldPeriod, p.String(),
			log.FieldProjectType, string(t),
			"projects", out)
	}
	return out, nil
}

// applyCurrent merges a saved row into the current record. Stored amounts of
// owned projects the row no longer funds are removed so the type's amounts
// sum to usedTotal; the removed project IDs are returned.
func applyCurrent(rec *core.PeriodRecord, row *core.StandardRow, t core.ProjectType, owned map[string]bool) []string {
	r := rec.EnsureRow(row.Cat.Ref())
	var removed []string
	for id := range r.Funded {
		if _, funded := row.Funding.Funded[id]; owned[id] && !funded {
			r.RemoveFunded(id)
			removed = append(removed, id)
		}
	}
	st := r.EnsureState(t)
	st.Saved = true
	st.Pct = row.Pct
	st.AllocatedBudget = row.AllocatedBudget
	st.CarryOverIn = row.CarryOverIn
	st.UsedTotal = row.Funding.UsedTotal
	st.OverrunThisQuarter = row.Funding.OverrunThisQuarter
	st.OverrunCumulative = row.Funding.OverrunCumulative
	st.PerProjectOverrun = core.CloneAmounts(row.PreviousOverrun)
	for id, amount := range row.Funding.Funded {
		r.SetFunded(id, amount)
	}
	return removed
}

func applyNext(rec *core.PeriodRecord, row *core.StandardRow, t core.ProjectType, carry map[string]decimal.Decimal) {
	st := rec.EnsureRow(row.Cat.Ref()).EnsureState(t)
	st.PerProjectOverrun = carry
	st.CarryOverIn = row.Funding.OverrunCumulative
}

// FullCarry is the per-project debt handed to the next period: the debt that
// rolled in plus this period's shortfall. Debt folded in by the engine was
// paid this period and is not carried again. Only positive amounts are kept.
func FullCarry(row *core.StandardRow) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	shortfall := row.Funding.Shortfall()
	for id, prev := range row.PreviousOverrun {
		_, participating := row.Funding.Need[id]
		if row.Funding.OverrunFolded && participating {
			continue
		}
		if prev.IsPositive() {
			out[id] = prev
		}
	}
	for id, short := range shortfall {
		if short.IsPositive() {
			out[id] = out[id].Add(short)
		}
	}
	return out
}

// writeLedgers echoes the funded amounts into each visible project's ledger
// and zeroes the allocations of the dropped projects. Missing ledgers and
// line items are skipped. Failures are collected per project into a
// *core.PartialWriteError.
func (s *AllocationService) writeLedgers(ctx context.Context, ws *allocation.Worksheet, dropped []string) error {
	failures := make(map[string]error)
	rows := ws.StandardRows()

	targets := make([]string, 0, len(ws.Projects)+len(dropped))
	for _, pf := range ws.Projects {
		targets = append(targets, pf.ProjectID)
	}
	targets = append(targets, dropped...)

	for _, projectID := range targets {
		ledger, err := s.deps.Ledgers.GetLedger(ctx, projectID, ws.Period)
		if core.IsNotFound(err) {
			s.logger.WarnContext(ctx, "Project has no ledger for period, skipping write-back",
				log.FieldProject, projectID,
				log.FieldPeriod, ws.Period.String())
			continue
		}
		if err != nil {
			failures[projectID] = fmt.Errorf("read ledger: %w", err)
			continue
		}

		matched := false
		for _, row := range rows {
			idx := s.resolver.Resolve(ctx, ledger, row.Cat.Ref())
			if idx < 0 {
				s.logger.DebugContext(ctx, "No ledger line item for category",
					log.FieldProject, projectID,
					log.FieldCategory, row.Cat.ID)
				continue
			}
			ledger.Items[idx].Allocated = row.Funding.Funded[projectID]
			matched = true
		}
		if !matched {
			continue
		}
		if err := s.deps.Ledgers.PutLedger(ctx, ledger); err != nil {
			failures[projectID] = fmt.Errorf("write ledger: %w", err)
		}
	}

	if len(failures) > 0 {
		return &core.PartialWriteError{Failures: failures}
	}
	return nil
}

// IsPartialWrite reports whether err carries ledger write-back failures only.
func IsPartialWrite(err error) bool {
	var pw *core.PartialWriteError
	return errors.As(err, &pw)
}

package allocation

import (
	"context"

	"costalloc/internal/core"
	"costalloc/internal/log"
)

// LineItemResolver finds the ledger line item of a category.
type LineItemResolver struct {
	logger *log.Logger
}

func NewLineItemResolver(logger *log.Logger) *LineItemResolver {
	if logger == nil {
		logger = log.Discard()
	}
	return &LineItemResolver{logger: logger.WithComponent(log.ComponentAllocation)}
}

// Resolve returns the index of the line item for ref, or -1. Items are
// matched by category ID first. Items without a matching ID are matched by
// normalized label; every such match is logged so the ledger can be fixed.
func (r *LineItemResolver) Resolve(ctx context.Context, ledger *core.LedgerRecord, ref core.CategoryRef) int {
	if ledger == nil {
		return -1
	}
	for i, item := range ledger.Items {
		if item.ID != "" && item.ID == ref.ID {
			return i
		}
	}

	want := core.NormalizeLabel(ref.Label)
	if want == "" {
		return -1
	}
	for i, item := range ledger.Items {
		if item.ID == "" && core.NormalizeLabel(item.Label) == want {
			r.logger.WarnContext(ctx, "Ledger line item matched by label",
				log.FieldProject, ledger.ProjectID,
				log.FieldPeriod, ledger.Period.Key(),
				log.FieldCategory, ref.ID,
				log.FieldLineItem, item.Label)
			return i
		}
	}
	return -1
}

package allocation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"costalloc/internal/core"
	"costalloc/internal/log"
)

func TestLineItemResolver(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)})
	r := NewLineItemResolver(logger)
	ctx := context.Background()

	ledger := &core.LedgerRecord{
		ProjectID: "p1",
		Period:    core.MustPeriod(2025, 1),
		Items: []core.LineItem{
			{ID: "other", Label: "Overhead"},
			{Label: "Spese  Generali"},
			{ID: "ins", Label: "Assicurazioni"},
		},
	}

	if got := r.Resolve(ctx, ledger, core.CategoryRef{ID: "ins", Label: "Insurance"}); got != 2 {
		t.Fatalf("ID match expected at 2, got %d", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("ID match must not log, got %q", buf.String())
	}

	if got := r.Resolve(ctx, ledger, core.CategoryRef{ID: "gen", Label: "spese generali"}); got != 1 {
		t.Fatalf("label fallback expected at 1, got %d", got)
	}
	if !strings.Contains(buf.String(), "matched by label") {
		t.Fatalf("label fallback should be logged, got %q", buf.String())
	}

	if got := r.Resolve(ctx, ledger, core.CategoryRef{ID: "ovh", Label: "Overhead"}); got != -1 {
		t.Fatalf("items with another ID must not match by label, got %d", got)
	}
	if got := r.Resolve(ctx, nil, core.CategoryRef{ID: "x"}); got != -1 {
		t.Fatalf("nil ledger should not match")
	}
}

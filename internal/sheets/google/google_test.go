package google

import (
	"context"
	"strings"
	"testing"

	"costalloc/internal/core"
)

func TestNewMissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewMissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Options{SpreadsheetID: "sheet"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientWithoutServiceFails(t *testing.T) {
	c := newClient(nil, Options{SpreadsheetID: "sheet"}, nil)
	if c.financialsSheet != "Financials" || c.fixedCostsSheet != "FixedCosts" {
		t.Errorf("default sheet names: %q %q", c.financialsSheet, c.fixedCostsSheet)
	}
	_, err := c.Financials(context.Background(), "p1", core.MustPeriod(2025, 1))
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

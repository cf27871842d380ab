package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"costalloc/internal/core"
)

func TestParsePeriodParams(t *testing.T) {
	now := time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		query   url.Values
		want    PeriodParams
		wantErr bool
	}{
		{
			name:  "all values provided",
			query: url.Values{"year": {"2024"}, "quarter": {"2"}, "type": {"construction"}},
			want:  PeriodParams{Period: core.MustPeriod(2024, 2), Type: core.Construction},
		},
		{
			name:  "quarter with Q prefix and mixed case type",
			query: url.Values{"year": {"2024"}, "quarter": {"q4"}, "type": {"Investment"}},
			want:  PeriodParams{Period: core.MustPeriod(2024, 4), Type: core.Investment},
		},
		{
			name:  "defaults to the current quarter",
			query: url.Values{"type": {"factory"}},
			want:  PeriodParams{Period: core.MustPeriod(2025, 3), Type: core.Factory},
		},
		{name: "missing type", query: url.Values{"year": {"2024"}}, wantErr: true},
		{name: "unknown type", query: url.Values{"type": {"shipyard"}}, wantErr: true},
		{name: "invalid year", query: url.Values{"year": {"abc"}, "type": {"factory"}}, wantErr: true},
		{name: "quarter out of range", query: url.Values{"quarter": {"0"}, "type": {"factory"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriodParams(tt.query, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantJSON bool
		wantErr  bool
	}{
		{name: "json body", body: `{"field": "pct", "value": 12.5}`, wantJSON: true},
		{name: "form body", body: "field=pct&value=12.5"},
		{name: "malformed json", body: `{"field": "pct"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			p := NewRequestBodyParser(req)
			err := p.Parse()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
			if p.Get("field") != "pct" || p.Get("value") != "12.5" {
				t.Errorf("field=%q value=%q", p.Get("field"), p.Get("value"))
			}
			if !p.Has("value") || p.Has("missing") {
				t.Errorf("Has reported wrong presence")
			}
		})
	}
}

func TestRequestBodyParserSanitizes(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{\"value\": \"  12\\u0000 \"}"))
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := p.Get("value"); got != "12" {
		t.Errorf("value = %q, want %q", got, "12")
	}
}

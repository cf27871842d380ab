// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Period and project type selection is shared by the query string of GET
// routes and the body of POST routes.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"costalloc/internal/core"
)

// maxBodyBytes bounds request bodies. Every payload here is a handful of
// fields.
const maxBodyBytes = 64 << 10

// valueGetter is implemented by url.Values and RequestBodyParser.
type valueGetter interface {
	Get(key string) string
}

// PeriodParams holds the period and project type a request targets.
type PeriodParams struct {
	Period core.Period
	Type   core.ProjectType
}

// ParsePeriodParams extracts year, quarter and type. Year and quarter default
// to the quarter containing now; the project type is required.
func ParsePeriodParams(values valueGetter, now time.Time) (PeriodParams, error) {
	current := core.PeriodOf(now)
	year, quarter := current.Year, int(current.Quarter)

	if v := strings.TrimSpace(values.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return PeriodParams{}, fmt.Errorf("invalid year %q", v)
		}
		year = y
	}
	if v := strings.TrimSpace(values.Get("quarter")); v != "" {
		q, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(v), "Q"))
		if err != nil {
			return PeriodParams{}, fmt.Errorf("invalid quarter %q", v)
		}
		quarter = q
	}

	p, err := core.NewPeriod(year, quarter)
	if err != nil {
		return PeriodParams{}, err
	}

	raw := strings.TrimSpace(values.Get("type"))
	if raw == "" {
		return PeriodParams{}, fmt.Errorf("missing project type")
	}
	t, err := core.ParseProjectType(raw)
	if err != nil {
		return PeriodParams{}, err
	}
	return PeriodParams{Period: p, Type: t}, nil
}

// RequestBodyParser handles parsing of request bodies in JSON or form format.
type RequestBodyParser struct {
	contentType string
	body        []byte
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// Has reports whether key was present in the body.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

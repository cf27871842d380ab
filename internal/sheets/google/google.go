package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"costalloc/internal/core"
	"costalloc/internal/log"
	"costalloc/internal/ports"
)

// Client reads project financials and fixed cost totals from a spreadsheet.
// It is read-only: the sheet is maintained by finance.
type Client struct {
	svc             *gsheet.Service
	spreadsheetID   string
	financialsSheet string
	fixedCostsSheet string
	logger          *log.Logger

	// One sheet read serves every project of a period.
	group singleflight.Group
	mu    sync.Mutex
	last  map[string]financialsSnapshot
	ttl   time.Duration
	now   func() time.Time
}

type financialsSnapshot struct {
	byProject map[string]core.ProjectFinancials
	readAt    time.Time
}

var (
	_ ports.FinancialsProvider = (*Client)(nil)
	_ ports.FixedCostTotals    = (*Client)(nil)
)

// Options configures the client. Credentials come from ServiceAccountJSON,
// ServiceAccountFile or GOOGLE_APPLICATION_CREDENTIALS, in that order.
type Options struct {
	SpreadsheetID      string
	FinancialsSheet    string
	FixedCostsSheet    string
	ServiceAccountJSON string
	ServiceAccountFile string
	Logger             *log.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, opts, logger), nil
}

func newClient(svc *gsheet.Service, opts Options, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	financials := strings.TrimSpace(opts.FinancialsSheet)
	if financials == "" {
		financials = "Financials"
	}
	fixed := strings.TrimSpace(opts.FixedCostsSheet)
	if fixed == "" {
		fixed = "FixedCosts"
	}
	return &Client{
		svc:             svc,
		spreadsheetID:   strings.TrimSpace(opts.SpreadsheetID),
		financialsSheet: financials,
		fixedCostsSheet: fixed,
		logger:          logger,
		last:            make(map[string]financialsSnapshot),
		ttl:             5 * time.Second,
		now:             time.Now,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, opts Options, logger *log.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(opts.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(opts.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		logger.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Financials returns the financials of one project. A project missing from
// the sheet is reported as core.ErrNotFound.
func (c *Client) Financials(ctx context.Context, projectID string, p core.Period) (core.ProjectFinancials, error) {
	byProject, err := c.periodFinancials(ctx, p)
	if err != nil {
		return core.ProjectFinancials{ProjectID: projectID, Period: p}, err
	}
	f, ok := byProject[projectID]
	if !ok {
		return core.ProjectFinancials{ProjectID: projectID, Period: p},
			fmt.Errorf("financials %s %s: %w", projectID, p, core.ErrNotFound)
	}
	return f, nil
}

func (c *Client) periodFinancials(ctx context.Context, p core.Period) (map[string]core.ProjectFinancials, error) {
	key := p.Key()
	c.mu.Lock()
	snap, ok := c.last[key]
	c.mu.Unlock()
	if ok && c.now().Sub(snap.readAt) < c.ttl {
		return snap.byProject, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		values, err := c.readRange(ctx, c.financialsSheet+"!A:ZZ")
		if err != nil {
			return nil, err
		}
		parsed, err := parseFinancials(values)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", c.financialsSheet, err)
		}
		byProject := parsed[key]
		if byProject == nil {
			byProject = map[string]core.ProjectFinancials{}
		}
		c.mu.Lock()
		c.last[key] = financialsSnapshot{byProject: byProject, readAt: c.now()}
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "Financials sheet read",
			log.FieldPeriod, p.String(),
			"projects", len(byProject))
		return byProject, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]core.ProjectFinancials), nil
}

func (c *Client) FixedCostTotal(ctx context.Context, p core.Period, t core.ProjectType) (decimal.Decimal, error) {
	values, err := c.readRange(ctx, c.fixedCostsSheet+"!A:D")
	if err != nil {
		return decimal.Zero, err
	}
	totals, err := parseFixedCosts(values)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", c.fixedCostsSheet, err)
	}
	amount, ok := totals[fixedKey(p, t)]
	if !ok {
		return decimal.Zero, fmt.Errorf("fixed cost total %s %s: %w", p, t, core.ErrNotFound)
	}
	return amount, nil
}

func (c *Client) readRange(ctx context.Context, rng string) ([][]interface{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

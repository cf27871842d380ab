package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"costalloc/internal/allocation"
	"costalloc/internal/core"
	"costalloc/internal/log"
)

// Ports consumed by the handlers. Implemented by the services package.
type (
	AllocationReader interface {
		Load(ctx context.Context, p core.Period, t core.ProjectType) (*allocation.Worksheet, error)
	}

	SessionStore interface {
		Open(ctx context.Context, p core.Period, t core.ProjectType) (*allocation.Session, error)
		Get(id string) (*allocation.Session, error)
		Refresh(ctx context.Context, id string) (*allocation.Session, error)
		Edit(ctx context.Context, id, categoryID string, field allocation.Field, raw string) (*core.StandardRow, error)
		Save(ctx context.Context, id string) (*allocation.Worksheet, error)
		Close(id string)
		Count() int
	}

	Cascader interface {
		Cascade(ctx context.Context, from core.Period, t core.ProjectType) ([]core.Period, error)
	}

	// Pinger is checked by the readiness check.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

type Options struct {
	Addr        string
	Allocations AllocationReader
	Sessions    SessionStore
	Cascade     Cascader
	// Ready is optional; without it readiness only reports the server state.
	Ready  Pinger
	Logger *log.Logger
	// RateLimit is the number of mutating requests allowed per client per
	// minute.
	RateLimit int
}

// Server wraps http.Server with the allocation API.
type Server struct {
	http.Server

	allocations AllocationReader
	sessions    SessionStore
	cascade     Cascader
	ready       Pinger

	logger      *log.Logger
	structured  *log.StructuredLogger
	rateLimiter *rateLimiter
	security    *securityMetrics

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		allocations: opts.Allocations,
		sessions:    opts.Sessions,
		cascade:     opts.Cascade,
		ready:       opts.Ready,
		logger:      logger,
		structured:  log.NewStructuredLogger(logger),
		rateLimiter: newRateLimiter(opts.RateLimit),
		security:    &securityMetrics{},
		started:     time.Now(),
		now:         time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/allocations", s.withSecurityHeaders(s.handleAllocations))
	mux.HandleFunc("POST /api/sessions", s.withSecurityHeaders(s.handleOpenSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.withSecurityHeaders(s.handleGetSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.withSecurityHeaders(s.handleCloseSession))
	mux.HandleFunc("PATCH /api/sessions/{id}/rows/{category}", s.withSecurityHeaders(s.handleEditRow))
	mux.HandleFunc("POST /api/sessions/{id}/save", s.withSecurityHeaders(s.handleSaveSession))
	mux.HandleFunc("POST /api/cascade", s.withSecurityHeaders(s.handleCascade))

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           log.Middleware(logger)(log.RequestIDMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ctx := r.Context()
		logger := log.FromContext(ctx)
		clientIP := extractClientIP(r)

		if reason, ok := detectSuspiciousRequest(r, s.security); ok {
			logger.WarnContext(ctx, "Suspicious request",
				"reason", reason,
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
				Header("Retry-After", "60").
				Write(w)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, s.now().Sub(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

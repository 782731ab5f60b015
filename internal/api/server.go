// Package api exposes retrieval and refresh over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kurakb/kura/internal/knowledge"
	"github.com/kurakb/kura/internal/log"
	"github.com/kurakb/kura/internal/refresh"
	"github.com/kurakb/kura/internal/retrieve"
)

// Retriever answers knowledge queries.
type Retriever interface {
	Answer(ctx context.Context, q retrieve.Query) ([]knowledge.Match, error)
}

// Refresher triggers and reports on knowledge refreshes.
type Refresher interface {
	Trigger(ctx context.Context) bool
	State() refresh.State
}

// ServerConfig bundles the dependencies for NewServer.
type ServerConfig struct {
	Retriever Retriever
	Refresher Refresher
	Pool      *pgxpool.Pool // Optional, used by the readiness probe
	Logger    log.Logger
	MaxK      int // Upper bound for per-request k, zero means unlimited
	RateBurst int // Rate limiter burst size, zero means 60
}

// Server is the HTTP API. Use Handler to mount it.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Refresher == nil {
		return nil, errors.New("refresher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	qh := &queryHandler{engine: cfg.Retriever, maxK: cfg.MaxK, logger: logger}
	rh := &refreshHandler{scheduler: cfg.Refresher, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", qh.query)
	mux.HandleFunc("POST /api/v1/refresh", rh.trigger)
	mux.HandleFunc("GET /api/v1/refresh/status", rh.status)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to separate health probes from the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

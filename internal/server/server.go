package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultServiceName names the otelhttp server span.
const DefaultServiceName = "actiongate"

// Options configures the middleware chain.
type Options struct {
	Logger *slog.Logger
	// Timeout cancels the request context and answers 504 once exceeded.
	// Zero disables it.
	Timeout     time.Duration
	ServiceName string
}

type Server struct {
	Router *chi.Mux
	logger *slog.Logger
}

// New builds a router with request ID, logging, timeout, panic recovery and
// tracing middleware installed, in that order.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	if opts.Timeout > 0 {
		r.Use(middleware.Timeout(opts.Timeout))
	}
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, name)
	})

	return &Server{Router: r, logger: logger}
}

// HTTPServer returns an http.Server serving the router on port.
func (s *Server) HTTPServer(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
}

// Package server assembles the gateway's HTTP surface: routing, middleware,
// and lifecycle.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ssrprompt/chat-gateway/internal/config"
)

// Deps are the route handlers wired into the router.
type Deps struct {
	Completions http.Handler
	Traces      http.Handler
	Metrics     http.Handler
}

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config and handlers.
func New(cfg *config.Config, deps Deps) *Server {
	r := mux.NewRouter()
	r.Handle("/chat/completions", deps.Completions).Methods(http.MethodPost)
	r.Handle("/traces", deps.Traces).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.ListenAddr,
			Handler:     handler,
			ReadTimeout: 30 * time.Second,
			// No write timeout: SSE responses stay open for as long as the
			// upstream keeps producing tokens.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Package api provides HTTP handlers and the main API server logic for the
// intake service.
//
// It exposes RESTful endpoints for listing questionnaire forms, driving a
// patient session through its segments, and reading the abandonment trail and
// submitted questionnaires. The API integrates with the wizard, forms, store
// and telemetry modules.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/karuna-health/intake/internal/forms"
	"github.com/karuna-health/intake/internal/models"
	"github.com/karuna-health/intake/internal/store"
	"github.com/karuna-health/intake/internal/wizard"
)

// DefaultAddr is the listen address used when no override is configured.
const DefaultAddr = ":8080"

// ClientKeyHeader carries the caller's device key. Sessions resume per
// device, so each client gets its own slice of the key-value store.
const ClientKeyHeader = "X-Client-Key"

// defaultClientKey is used when a request carries no device key.
const defaultClientKey = "anonymous"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server bundles the collaborators behind the HTTP endpoints.
type Server struct {
	addr     string
	registry *forms.Registry
	st       store.Store
	emitter  wizard.Emitter

	httpServer *http.Server
}

// NewServer creates an API server over the given form registry, store and
// telemetry emitter.
func NewServer(registry *forms.Registry, st store.Store, emitter wizard.Emitter, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("API server created", "addr", cfg.Addr)
	return &Server{
		addr:     cfg.Addr,
		registry: registry,
		st:       st,
		emitter:  emitter,
	}
}

// Handler returns the routing mux. Exposed separately so tests can drive the
// server through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/forms", s.formsHandler)
	mux.HandleFunc("/forms/", s.formSessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionsHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/submissions", s.submissionsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	slog.Info("Intake API running", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// engineDeps assembles the per-request engine collaborators. The key-value
// storage is scoped to the calling device so two patients on different
// devices never share resume state.
func (s *Server) engineDeps(clientKey string) wizard.Dependencies {
	return wizard.Dependencies{
		Storage:   store.NewScopedStorage(s.st, clientKey),
		Emitter:   s.emitter,
		Submitter: storeSubmitter{st: s.st},
	}
}

// clientKey extracts the device key from the request headers.
func clientKey(r *http.Request) string {
	if key := r.Header.Get(ClientKeyHeader); key != "" {
		return key
	}
	return defaultClientKey
}

// storeSubmitter delivers final questionnaire payloads into the store, which
// is where staff tooling reads them from.
type storeSubmitter struct {
	st store.Store
}

func (s storeSubmitter) Submit(ctx context.Context, submission models.Submission) error {
	return s.st.AddSubmission(submission)
}

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/andesbank/leadflow/internal/flow"
	"github.com/andesbank/leadflow/internal/messaging"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":3009"

// Relay is the pass-through agent surface used when the server runs in relay
// mode instead of driving the built-in engine.
type Relay interface {
	ForwardToAgent(ctx context.Context, phone, message string) (string, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr              string
	Relay             Relay
	WebhookHandler    http.HandlerFunc
	GenAIConfigured   bool
	BackendConfigured bool
	Provider          string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithRelay makes POST /message forward to the external agent instead of the
// built-in engine.
func WithRelay(r Relay) Option {
	return func(o *Opts) {
		o.Relay = r
	}
}

// WithWebhookHandler registers a transport webhook at /webhook/twilio.
func WithWebhookHandler(h http.HandlerFunc) Option {
	return func(o *Opts) {
		o.WebhookHandler = h
	}
}

// WithFeatureFlags sets the feature flags reported by the health endpoint.
func WithFeatureFlags(genai, backend bool, provider string) Option {
	return func(o *Opts) {
		o.GenAIConfigured = genai
		o.BackendConfigured = backend
		o.Provider = provider
	}
}

// Server is the LeadFlow HTTP server.
type Server struct {
	addr       string
	engine     *flow.Engine
	msgService messaging.Service
	relay      Relay
	webhook    http.HandlerFunc
	genaiOn    bool
	backendOn  bool
	provider   string
}

// NewServer creates a server over the given engine and messaging service.
func NewServer(engine *flow.Engine, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("API NewServer configured", "addr", cfg.Addr, "relay_set", cfg.Relay != nil, "provider", cfg.Provider)
	return &Server{
		addr:       cfg.Addr,
		engine:     engine,
		msgService: msgService,
		relay:      cfg.Relay,
		webhook:    cfg.WebhookHandler,
		genaiOn:    cfg.GenAIConfigured,
		backendOn:  cfg.BackendConfigured,
		provider:   cfg.Provider,
	}
}

// Handler builds the HTTP mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/send-message", s.handleSendMessage)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/message", s.handleMessage)
	if s.webhook != nil {
		mux.HandleFunc("/webhook/twilio", s.webhook)
	}
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		slog.Info("API server stopped")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

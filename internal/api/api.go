// Package api provides the HTTP surface of agendazap: the channel
// webhooks that receive customer messages and the health endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agendazap/agendazap/internal/messaging"
	"github.com/agendazap/agendazap/internal/store"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	VerifyToken string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// Server hosts the webhook and health endpoints.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	st          store.Store
	dispatcher  *messaging.Dispatcher
	twilio      *messaging.TwilioService
	verifyToken string
}

// NewServer creates the API server. twilio may be nil when the Twilio
// channel is not configured; its webhook route is then omitted.
func NewServer(st store.Store, dispatcher *messaging.Dispatcher, twilio *messaging.TwilioService, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080"}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		st:          st,
		dispatcher:  dispatcher,
		twilio:      twilio,
		verifyToken: cfg.VerifyToken,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Get("/webhook/whatsapp", s.verifyWebhookHandler)
	r.Post("/webhook/whatsapp", s.inboundWebhookHandler)
	if twilio != nil {
		r.Post("/webhook/twilio", twilio.WebhookHandler)
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("API server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

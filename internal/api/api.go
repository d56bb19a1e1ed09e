// Package api provides HTTP handlers and the main API server logic for the
// intake service.
//
// It exposes the inbound message webhook that drives the conversation state
// machine, plus operational endpoints for health, active sessions, and
// Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desklink/intakebot/internal/flow"
	"github.com/desklink/intakebot/internal/messaging"
	"github.com/desklink/intakebot/internal/models"
	"github.com/desklink/intakebot/internal/session"
	"github.com/desklink/intakebot/internal/store"
)

// DefaultAddr is the default API server listen address
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the conversation bot, the messaging service, and the stores
// behind the HTTP surface.
type Server struct {
	addr       string
	bot        *flow.Bot
	msgService messaging.Service
	sessions   session.Store
	st         store.Store
	httpServer *http.Server
}

// NewServer creates an API server around an initialized bot and its collaborators.
func NewServer(bot *flow.Bot, msgService messaging.Service, sessions session.Store, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		addr:       cfg.Addr,
		bot:        bot,
		msgService: msgService,
		sessions:   sessions,
		st:         st,
	}
}

// Run starts the messaging service, the response bridge, and the HTTP server.
// It blocks until the HTTP server stops.
func (s *Server) Run(ctx context.Context) error {
	if err := s.msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	s.startResponseBridge(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	if tw, ok := s.msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("/webhook/twilio", tw.WebhookHandler)
		slog.Info("Server registered Twilio webhook endpoint", "path", "/webhook/twilio")
	}
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.recoveryMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Server starting HTTP listener", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and the messaging service.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server shutting down")
	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("Server failed to shut down HTTP listener", "error", err)
			firstErr = err
		}
	}
	if err := s.msgService.Stop(); err != nil {
		slog.Error("Server failed to stop messaging service", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// startResponseBridge consumes inbound messages from the messaging service and
// feeds them to the conversation bot. Direct transport events (WhatsApp socket
// messages, Twilio form posts) arrive here; the JSON webhook endpoint feeds the
// bot independently.
func (s *Server) startResponseBridge(ctx context.Context) {
	slog.Info("Server starting response bridge")

	go func() {
		defer slog.Info("Server response bridge stopped")

		for {
			select {
			case response, ok := <-s.msgService.Responses():
				if !ok {
					slog.Debug("Server responses channel closed")
					return
				}

				evt := models.InboundEvent{
					Type: models.EventTypeMessage,
					From: response.From,
					Body: response.Body,
					Time: response.Time,
				}
				ack := s.bot.HandleEvent(ctx, evt)
				slog.Debug("Server response bridge handled event", "from", response.From, "status", ack.Status)

			case <-ctx.Done():
				slog.Debug("Server response bridge stopping due to context cancellation")
				return
			}
		}
	}()
}

// recoveryMiddleware converts handler panics into HTTP 500 responses so a
// single malformed delivery cannot take the server down.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Server recovered from handler panic",
					"panic", rec, "path", r.URL.Path, "stack", string(debug.Stack()))
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Package api provides HTTP handlers for the intake service endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/desklink/intakebot/internal/models"
)

// webhookHandler accepts inbound messaging events as JSON and runs them
// through the conversation bot. Every well-formed delivery is acknowledged
// with 200 so upstream gateways do not retry conversational traffic; the Ack
// body reports whether the event was processed or dropped.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.webhookHandler: processing webhook delivery", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var evt models.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorAck("Invalid JSON format"))
		return
	}

	ack := s.bot.HandleEvent(r.Context(), evt)

	status := http.StatusOK
	if ack.Status == models.AckStatusError {
		status = http.StatusInternalServerError
	}
	slog.Debug("Server.webhookHandler: event handled", "from", evt.From, "status", ack.Status)
	writeJSONResponse(w, status, ack)
}

// healthHandler reports liveness plus the size of the active session set.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	count, err := s.sessions.Count(r.Context())
	if err != nil {
		slog.Error("Server.healthHandler: session store unavailable", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("session store unavailable"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"active_sessions": count,
	}))
}

// sessionsHandler exposes a snapshot of active conversations for operators.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := s.sessions.Snapshot(r.Context())
	if err != nil {
		slog.Error("Server.sessionsHandler: failed to snapshot sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}

	slog.Debug("Server.sessionsHandler: returning session snapshot", "count", len(snapshot))
	writeJSONResponse(w, http.StatusOK, models.Success(snapshot))
}

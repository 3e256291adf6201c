package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

// processTimeout bounds the background engine turn spawned per webhook
// delivery, so a stuck booking backend cannot pin goroutines forever.
const processTimeout = 30 * time.Second

// verifyWebhookHandler answers the provider's subscription handshake:
// echo the challenge when the verify token matches, 403 otherwise.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		slog.Info("Webhook verification succeeded")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	slog.Warn("Webhook verification failed", "mode", mode)
	writeJSONResponse(w, http.StatusForbidden, models.Error("Verification failed"))
}

// inboundWebhookHandler receives one customer message. It validates the
// payload, acknowledges immediately and runs the conversation turn in
// the background: the provider's delivery timeout must never wait on
// the booking backend.
func (s *Server) inboundWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var msg models.IncomingMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("inboundWebhookHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := msg.Validate(); err != nil {
		slog.Warn("inboundWebhookHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "accepted"}))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := s.dispatcher.Process(ctx, msg); err != nil {
			slog.Error("inboundWebhookHandler processing failed", "error", err, "messageID", msg.MessageID)
		}
	}()
}

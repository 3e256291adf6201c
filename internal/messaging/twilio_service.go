package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio API.
// Inbound messages arrive over the Twilio webhook instead of a live
// connection; menus degrade to numbered text on send.
type TwilioService struct {
	client    twiliowhatsapp.Sender // real Twilio client or MockClient
	responses chan models.IncomingMessage
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService over a Twilio sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:    client,
		responses: make(chan models.IncomingMessage, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient reduces a recipient to its digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio; inbound flows through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.responses)
	}()

	return nil
}

// SendReply sends a reply via Twilio. Menus are rendered as numbered
// text by the underlying client.
func (s *TwilioService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendReply validation error", "error", err, "to", to)
		return err
	}

	if reply.Menu != nil {
		return s.client.SendMenu(ctx, canonicalTo, *reply.Menu)
	}
	return s.client.SendMessage(ctx, canonicalTo, reply.Text)
}

// Responses returns the channel for incoming messages.
func (s *TwilioService) Responses() <-chan models.IncomingMessage {
	return s.responses
}

// WebhookHandler handles inbound Twilio webhook requests. It parses
// incoming messages and emits them into the Responses() channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	messageID := r.FormValue("MessageSid")

	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from", from)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("Inbound WhatsApp message from Twilio", "from", from)

	s.safeEmitResponse(models.IncomingMessage{
		MessageID: messageID,
		From:      from,
		Text:      body,
		Time:      time.Now(),
	})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// safeEmitResponse safely pushes messages into the responses channel.
func (s *TwilioService) safeEmitResponse(msg models.IncomingMessage) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", msg.From)
		return
	}

	select {
	case s.responses <- msg:
		slog.Debug("TwilioService emitted inbound message", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", msg.From)
	}
}

package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client    whatsapp.Sender
	waClient  *whatsapp.Client // access to underlying client for event handling
	responses chan models.IncomingMessage
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		responses: make(chan models.IncomingMessage, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient reduces a recipient to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start begins background event handling.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient != nil {
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}

	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.responses)
	slog.Info("WhatsAppService stopped")
	return nil
}

// SendReply delivers a reply, as an interactive list when it carries a
// menu and as plain text otherwise.
func (s *WhatsAppService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendReply validation error", "error", err, "to", to)
		return err
	}

	if reply.Menu != nil {
		return s.client.SendMenu(ctx, canonicalTo, *reply.Menu)
	}
	return s.client.SendMessage(ctx, canonicalTo, reply.Text)
}

// Responses returns a channel of incoming customer messages.
func (s *WhatsAppService) Responses() <-chan models.IncomingMessage {
	return s.responses
}

// handleEvents registers the whatsmeow event handler and feeds inbound
// messages into the responses channel.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if v, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(v)
		}
	})

	slog.Debug("WhatsAppService event handler registered")

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage converts a whatsmeow message event into an
// IncomingMessage. List and button responses carry the structured
// option ID; plain and extended text carry the body.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	msg := models.IncomingMessage{
		MessageID: evt.Info.ID,
		From:      evt.Info.Sender.User,
		Time:      evt.Info.Timestamp,
	}

	switch {
	case evt.Message.ListResponseMessage != nil:
		lr := evt.Message.ListResponseMessage
		msg.Interactive = &models.InteractiveReply{
			ID:    lr.GetSingleSelectReply().GetSelectedRowID(),
			Title: lr.GetTitle(),
		}
	case evt.Message.ButtonsResponseMessage != nil:
		br := evt.Message.ButtonsResponseMessage
		msg.Interactive = &models.InteractiveReply{
			ID:    br.GetSelectedButtonID(),
			Title: br.GetSelectedDisplayText(),
		}
	case evt.Message.Conversation != nil:
		msg.Text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		msg.Text = *evt.Message.ExtendedTextMessage.Text
	default:
		// Skip non-text messages (images, audio, etc.)
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	s.safeEmitResponse(msg)
}

func (s *WhatsAppService) safeEmitResponse(msg models.IncomingMessage) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "from", msg.From)
		return
	}

	select {
	case s.responses <- msg:
		slog.Debug("WhatsAppService incoming message forwarded", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", msg.From, "timeout", DefaultChannelTimeout)
	}
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agendazap/agendazap/internal/flow"
	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/store"
)

// Dispatcher routes inbound customer messages through the conversation
// engine and queues the replies on the durable outbox. Processing is
// at-least-once from the provider's point of view; the dedup record
// collapses redelivered message IDs to one engine turn.
type Dispatcher struct {
	store    store.Store
	engine   *flow.Engine
	service  Service
	endpoint string
}

// NewDispatcher creates a Dispatcher for one channel endpoint.
func NewDispatcher(st store.Store, engine *flow.Engine, service Service, endpoint string) *Dispatcher {
	return &Dispatcher{
		store:    st,
		engine:   engine,
		service:  service,
		endpoint: endpoint,
	}
}

// Run consumes the service's inbound channel until the context is
// cancelled or the channel closes.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher running", "endpoint", d.endpoint)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping", "endpoint", d.endpoint)
			return
		case msg, ok := <-d.service.Responses():
			if !ok {
				slog.Info("Dispatcher inbound channel closed", "endpoint", d.endpoint)
				return
			}
			if err := d.Process(ctx, msg); err != nil {
				slog.Error("Dispatcher failed to process message", "error", err, "from", msg.From)
			}
		}
	}
}

// Process handles one inbound message end to end: canonicalize the
// sender, dedup, run the engine turn, enqueue the reply.
func (d *Dispatcher) Process(ctx context.Context, msg models.IncomingMessage) error {
	canonicalFrom, err := d.service.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	msg.From = canonicalFrom

	if msg.MessageID == "" {
		// Providers occasionally omit the ID; a generated one keeps the
		// dedup insert satisfied without ever matching a redelivery.
		msg.MessageID = uuid.NewString()
	}

	fresh, err := d.store.RecordInbound(msg.MessageID, canonicalFrom)
	if err != nil {
		return fmt.Errorf("record inbound %s: %w", msg.MessageID, err)
	}
	if !fresh {
		slog.Debug("Dispatcher skipping duplicate delivery", "messageID", msg.MessageID, "from", canonicalFrom)
		return nil
	}

	reply, err := d.engine.HandleMessage(ctx, d.endpoint, msg)
	if err != nil {
		return fmt.Errorf("handle message %s: %w", msg.MessageID, err)
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply for %s: %w", msg.MessageID, err)
	}
	if err := d.store.EnqueueReply(store.OutboxMessage{
		Endpoint:    d.endpoint,
		Recipient:   canonicalFrom,
		PayloadJSON: string(payload),
	}); err != nil {
		return fmt.Errorf("enqueue reply for %s: %w", msg.MessageID, err)
	}

	if err := d.store.MarkProcessed(msg.MessageID); err != nil {
		slog.Error("Dispatcher failed to mark message processed", "error", err, "messageID", msg.MessageID)
	}
	return nil
}

// NewReplySendFunc adapts a Service into the outbox send callback:
// decode the queued payload and deliver it over the channel.
func NewReplySendFunc(service Service) store.ReplySendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		var reply models.Reply
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &reply); err != nil {
			return fmt.Errorf("decode reply payload %d: %w", msg.ID, err)
		}
		return service.SendReply(ctx, msg.Recipient, reply)
	}
}

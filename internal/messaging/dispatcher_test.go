package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agendazap/agendazap/internal/booking"
	"github.com/agendazap/agendazap/internal/flow"
	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/store"
	"github.com/agendazap/agendazap/internal/twiliowhatsapp"
)

const dispatcherEndpoint = "5511888880000"

var dispatcherServices = []models.Service{
	{ID: "corte", Name: "Corte", PriceCents: 5000},
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.InMemoryStore, *TwilioService) {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { st.Close() })

	backend := booking.NewMemoryBackend()
	engine := flow.NewEngine(flow.NewStoreBackedStateManager(st), backend, backend, dispatcherServices)
	service := NewTwilioService(twiliowhatsapp.NewMockClient())
	t.Cleanup(func() { service.Stop() })

	return NewDispatcher(st, engine, service, dispatcherEndpoint), st, service
}

func TestDispatcherProcessEnqueuesReply(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	err := d.Process(context.Background(), models.IncomingMessage{
		MessageID: "wamid.1",
		From:      "+55 11 99999-0000",
		Text:      "agendar",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	claimed, err := st.ClaimDueReplies(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueReplies: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("outbox has %d replies, want 1", len(claimed))
	}
	// The sender was canonicalized to digits before keying anything.
	if claimed[0].Recipient != "5511999990000" {
		t.Errorf("recipient = %q, want canonical digits", claimed[0].Recipient)
	}

	var reply models.Reply
	if err := json.Unmarshal([]byte(claimed[0].PayloadJSON), &reply); err != nil {
		t.Fatalf("payload not a reply: %v", err)
	}
	if reply.Text == "" && reply.Menu == nil {
		t.Error("queued reply is empty")
	}
}

func TestDispatcherDuplicateDeliveryIsIgnored(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	msg := models.IncomingMessage{
		MessageID: "wamid.dup",
		From:      "5511999990000",
		Text:      "agendar",
	}
	if err := d.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := d.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process duplicate: %v", err)
	}

	claimed, err := st.ClaimDueReplies(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueReplies: %v", err)
	}
	if len(claimed) != 1 {
		t.Errorf("outbox has %d replies after duplicate delivery, want 1", len(claimed))
	}
}

func TestDispatcherRejectsInvalidSender(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	err := d.Process(context.Background(), models.IncomingMessage{
		MessageID: "wamid.2",
		From:      "not-a-number",
		Text:      "agendar",
	})
	if err == nil {
		t.Error("expected error for sender with no digits")
	}
}

func TestReplySendFuncDeliversDecodedReply(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	service := NewTwilioService(mock)
	defer service.Stop()

	send := NewReplySendFunc(service)
	payload, _ := json.Marshal(models.Reply{Text: "Olá!"})
	err := send(context.Background(), store.OutboxMessage{
		ID:          1,
		Recipient:   "5511999990000",
		PayloadJSON: string(payload),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].Body != "Olá!" {
		t.Errorf("sent = %+v", mock.SentMessages)
	}

	if err := send(context.Background(), store.OutboxMessage{ID: 2, Recipient: "5511999990000", PayloadJSON: "{"}); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestDispatcherRunConsumesWebhookMessages(t *testing.T) {
	d, st, service := newTestDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	service.safeEmitResponse(models.IncomingMessage{
		MessageID: "wamid.3",
		From:      "5511999990000",
		Text:      "agendar",
		Time:      time.Now(),
	})

	deadline := time.After(2 * time.Second)
	for {
		claimed, err := st.ClaimDueReplies(time.Now(), 10)
		if err != nil {
			t.Fatalf("ClaimDueReplies: %v", err)
		}
		if len(claimed) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("reply never enqueued")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

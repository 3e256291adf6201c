package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agendazap/agendazap/internal/booking"
	"github.com/agendazap/agendazap/internal/flow"
	"github.com/agendazap/agendazap/internal/messaging"
	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/store"
	"github.com/agendazap/agendazap/internal/twiliowhatsapp"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { st.Close() })

	backend := booking.NewMemoryBackend()
	engine := flow.NewEngine(
		flow.NewStoreBackedStateManager(st),
		backend, backend,
		[]models.Service{{ID: "corte", Name: "Corte", PriceCents: 5000}},
	)
	twilioSvc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	t.Cleanup(func() { twilioSvc.Stop() })
	dispatcher := messaging.NewDispatcher(st, engine, twilioSvc, "5511888880000")

	return NewServer(st, dispatcher, twilioSvc, WithVerifyToken("segredo")), st
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want 200", path, w.Code)
		}
	}
}

func TestVerifyWebhookHandshake(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=segredo&hub.challenge=42abc", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "42abc" {
		t.Errorf("body = %q, want challenge echoed", w.Body.String())
	}
}

func TestVerifyWebhookRejectsBadToken(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=errado&hub.challenge=42abc", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestInboundWebhookFastAck(t *testing.T) {
	s, st := newTestServer(t)

	body := `{"message_id":"wamid.1","from":"+55 11 99999-0000","text":"agendar"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// Processing runs in the background; the ack does not wait for it.
	deadline := time.After(2 * time.Second)
	for {
		claimed, err := st.ClaimDueReplies(time.Now(), 10)
		if err != nil {
			t.Fatalf("ClaimDueReplies: %v", err)
		}
		if len(claimed) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("reply never enqueued")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestInboundWebhookRejectsBadPayloads(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing sender", `{"text":"agendar"}`},
		{"empty message", `{"from":"5511999990000"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(c.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestTwilioWebhookRouteMounted(t *testing.T) {
	s, _ := newTestServer(t)

	form := "From=whatsapp%3A%2B5511999990000&Body=agendar&MessageSid=SM1"
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

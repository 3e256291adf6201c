package twiliowhatsapp

import (
	"context"
	"strings"
	"testing"

	"github.com/agendazap/agendazap/internal/models"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "5511999990000", "Olá")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].Body != "Olá" {
		t.Errorf("expected body %q, got %q", "Olá", mock.SentMessages[0].Body)
	}
}

func TestRenderMenuAsText(t *testing.T) {
	menu := models.Menu{
		Body:   "Qual serviço você deseja?",
		Button: "Serviços",
		Options: []models.MenuOption{
			{ID: "svc_1", Title: "Corte", Description: "R$ 50,00"},
			{ID: "svc_2", Title: "Barba"},
		},
	}

	text := RenderMenuAsText(menu)
	if !strings.HasPrefix(text, "Qual serviço você deseja?") {
		t.Errorf("body missing: %q", text)
	}
	if !strings.Contains(text, "1. Corte (R$ 50,00)") {
		t.Errorf("first option missing: %q", text)
	}
	if !strings.Contains(text, "2. Barba") {
		t.Errorf("second option missing: %q", text)
	}
	if strings.Contains(text, "svc_1") {
		t.Errorf("option IDs should not leak into text: %q", text)
	}
}

func TestMockClient_SendMenuDegradesToText(t *testing.T) {
	mock := NewMockClient()
	menu := models.Menu{
		Body:    "Escolha",
		Options: []models.MenuOption{{ID: "a", Title: "Opção A"}},
	}
	if err := mock.SendMenu(context.Background(), "5511999990000", menu); err != nil {
		t.Fatalf("SendMenu: %v", err)
	}
	if len(mock.SentMenus) != 1 {
		t.Fatalf("expected 1 menu, got %d", len(mock.SentMenus))
	}
	if len(mock.SentMessages) != 1 || !strings.Contains(mock.SentMessages[0].Body, "1. Opção A") {
		t.Errorf("menu not degraded to numbered text: %+v", mock.SentMessages)
	}
}

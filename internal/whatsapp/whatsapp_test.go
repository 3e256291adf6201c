package whatsapp

import (
	"context"
	"testing"

	"github.com/agendazap/agendazap/internal/models"
)

func TestSendMessageValidation(t *testing.T) {
	c := &Client{}
	if err := c.SendMessage(context.Background(), "", "oi"); err == nil {
		t.Error("expected error for empty recipient")
	}
	if err := c.SendMessage(context.Background(), "5511999990000", ""); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestSendMenuValidation(t *testing.T) {
	c := &Client{}
	err := c.SendMenu(context.Background(), "5511999990000", models.Menu{Body: "b", Button: "x"})
	if err == nil {
		t.Error("expected error for menu with no options")
	}
}

func TestMockClientRecordsSends(t *testing.T) {
	m := NewMockClient()
	if err := m.SendMessage(context.Background(), "5511999990000", "oi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	menu := models.Menu{
		Body:    "Escolha",
		Button:  "Opções",
		Options: []models.MenuOption{{ID: "menu_agendar", Title: "Agendar"}},
	}
	if err := m.SendMenu(context.Background(), "5511999990000", menu); err != nil {
		t.Fatalf("SendMenu: %v", err)
	}
	if len(m.Texts) != 1 || m.Texts[0] != "oi" {
		t.Errorf("texts = %v", m.Texts)
	}
	if len(m.Menus) != 1 || m.Menus[0].Options[0].ID != "menu_agendar" {
		t.Errorf("menus = %+v", m.Menus)
	}
}

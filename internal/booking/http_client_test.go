package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

func TestHTTPBackendAvailableSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slots" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("date"); got != "2026-09-15" {
			t.Errorf("date = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"slots": []models.Slot{
				{ID: "s1", StartTime: time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC), Endpoint: "e1", Status: models.SlotAvailable},
				{ID: "s2", StartTime: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC), Endpoint: "e1", Status: models.SlotBooked},
			},
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	slots, err := b.AvailableSlots(context.Background(), "e1", "2026-09-15")
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 1 || slots[0].ID != "s1" {
		t.Errorf("slots = %+v, want only the available one", slots)
	}
}

func TestHTTPBackendAvailableSlotsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	_, err := b.AvailableSlots(context.Background(), "e1", "2026-09-15")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestHTTPBackendBookSlotConflictIsOrdinaryResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.BookingResult{Booked: false, Reason: models.ReasonSlotUnavailable})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	res, err := b.BookSlot(context.Background(), models.BookingRequest{SlotID: "s1"})
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if res.Booked || res.Reason != models.ReasonSlotUnavailable {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPBackendBookSlotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.BookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.BookingResult{
			Booked: true,
			Order:  &models.Order{ID: "o1", SlotID: req.SlotID},
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL)
	res, err := b.BookSlot(context.Background(), models.BookingRequest{SlotID: "s1"})
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if !res.Booked || res.Order == nil || res.Order.SlotID != "s1" {
		t.Errorf("result = %+v", res)
	}
}

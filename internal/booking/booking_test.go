package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

func testSlot(id, endpoint string, start time.Time) models.Slot {
	return models.Slot{ID: id, Endpoint: endpoint, StartTime: start}
}

func testRequest(slotID, phone string) models.BookingRequest {
	return models.BookingRequest{
		Endpoint:      "e1",
		SlotID:        slotID,
		CustomerName:  "Cliente",
		CustomerPhone: phone,
		Items:         []models.OrderItem{{Name: "Corte", PriceCents: 5000, Quantity: 1}},
		TotalCents:    5000,
	}
}

func TestAvailableSlotsFiltersAndSorts(t *testing.T) {
	b := NewMemoryBackend()
	day := time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC)

	b.AddSlot(testSlot("late", "e1", day.Add(14*time.Hour)))
	b.AddSlot(testSlot("early", "e1", day.Add(9*time.Hour)))
	b.AddSlot(testSlot("other-endpoint", "e2", day.Add(10*time.Hour)))
	b.AddSlot(testSlot("other-day", "e1", day.AddDate(0, 0, 1).Add(10*time.Hour)))
	booked := testSlot("booked", "e1", day.Add(11*time.Hour))
	booked.Status = models.SlotBooked
	b.AddSlot(booked)

	slots, err := b.AvailableSlots(context.Background(), "e1", "2026-09-15")
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
	if slots[0].ID != "early" || slots[1].ID != "late" {
		t.Errorf("slots not sorted by start time: %s, %s", slots[0].ID, slots[1].ID)
	}
}

func TestBookSlotOutcomes(t *testing.T) {
	b := NewMemoryBackend()
	b.AddSlot(testSlot("s1", "e1", time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)))

	res, err := b.BookSlot(context.Background(), testRequest("missing", "551199"))
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if res.Booked || res.Reason != models.ReasonSlotNotFound {
		t.Errorf("missing slot: %+v", res)
	}

	res, err = b.BookSlot(context.Background(), testRequest("s1", "551199"))
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if !res.Booked || res.Order == nil {
		t.Fatalf("first booking should succeed: %+v", res)
	}
	if res.Order.SlotID != "s1" || res.Order.TotalCents != 5000 {
		t.Errorf("unexpected order: %+v", res.Order)
	}

	res, err = b.BookSlot(context.Background(), testRequest("s1", "551198"))
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if res.Booked || res.Reason != models.ReasonSlotUnavailable {
		t.Errorf("second booking should lose: %+v", res)
	}

	if status, ok := b.SlotStatus("s1"); !ok || status != models.SlotBooked {
		t.Errorf("slot status = %s, want booked", status)
	}
}

func TestBookSlotRaceExactlyOneWinner(t *testing.T) {
	b := NewMemoryBackend()
	b.AddSlot(testSlot("s1", "e1", time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)))

	const racers = 16
	var wg sync.WaitGroup
	results := make([]models.BookingResult, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := b.BookSlot(context.Background(), testRequest("s1", "5511999990000"))
			if err != nil {
				t.Errorf("BookSlot: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	var winners int
	for _, res := range results {
		if res.Booked {
			winners++
		} else if res.Reason != models.ReasonSlotUnavailable {
			t.Errorf("loser reason = %q, want %q", res.Reason, models.ReasonSlotUnavailable)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if orders := b.Orders(); len(orders) != 1 {
		t.Errorf("orders = %d, want 1", len(orders))
	}
}

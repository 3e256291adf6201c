package booking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agendazap/agendazap/internal/models"
)

// MemoryBackend is an in-process Backend for development and tests. The
// commit path holds a single mutex across the re-check and the write, so
// two racing confirmations for the same slot resolve to exactly one
// success.
type MemoryBackend struct {
	mu     sync.Mutex
	slots  map[string]models.Slot
	orders map[string]models.Order
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		slots:  make(map[string]models.Slot),
		orders: make(map[string]models.Order),
	}
}

// AddSlot registers a slot. Used by seeding and tests.
func (b *MemoryBackend) AddSlot(slot models.Slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot.Status == "" {
		slot.Status = models.SlotAvailable
	}
	b.slots[slot.ID] = slot
}

// MarkBooked flips a slot to booked out-of-band, simulating a competing
// booking finalized elsewhere.
func (b *MemoryBackend) MarkBooked(slotID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.slots[slotID]; ok {
		s.Status = models.SlotBooked
		b.slots[slotID] = s
	}
}

// AvailableSlots returns the available slots for an endpoint and date,
// ordered by start time.
func (b *MemoryBackend) AvailableSlots(ctx context.Context, endpoint, date string) ([]models.Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Slot
	for _, s := range b.slots {
		if s.Endpoint == endpoint && s.Status == models.SlotAvailable && s.StartTime.Format("2006-01-02") == date {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// BookSlot re-validates availability and books atomically under the
// backend mutex.
func (b *MemoryBackend) BookSlot(ctx context.Context, req models.BookingRequest) (models.BookingResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, ok := b.slots[req.SlotID]
	if !ok {
		return models.BookingResult{Reason: models.ReasonSlotNotFound}, nil
	}
	if slot.Status != models.SlotAvailable {
		slog.Debug("MemoryBackend BookSlot: slot no longer available", "slotID", req.SlotID)
		return models.BookingResult{Reason: models.ReasonSlotUnavailable}, nil
	}

	slot.Status = models.SlotBooked
	b.slots[req.SlotID] = slot

	order := models.Order{
		ID:            uuid.NewString(),
		Endpoint:      req.Endpoint,
		SlotID:        req.SlotID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Items:         req.Items,
		TotalCents:    req.TotalCents,
		CreatedAt:     time.Now(),
	}
	b.orders[order.ID] = order

	slog.Info("MemoryBackend BookSlot succeeded", "slotID", req.SlotID, "orderID", order.ID)
	return models.BookingResult{Booked: true, Order: &order}, nil
}

// Orders returns all created orders. Used by tests.
func (b *MemoryBackend) Orders() []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	return out
}

// SlotStatus reports the current status of a slot. Used by tests.
func (b *MemoryBackend) SlotStatus(slotID string) (models.SlotStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[slotID]
	return s.Status, ok
}

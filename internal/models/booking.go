package models

// BookingRequest is the payload handed to the booking committer when a
// customer confirms. The committer re-validates slot availability at
// commit time; the request never carries a claim of availability.
type BookingRequest struct {
	Endpoint      string      `json:"endpoint"`
	SlotID        string      `json:"slot_id"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
	Items         []OrderItem `json:"items"`
	TotalCents    int64       `json:"total_cents"`
}

// Booking failure reasons surfaced to the conversation engine. A failed
// commit is an ordinary branch of the contract, not an error: the
// customer recovers by picking another slot.
const (
	ReasonSlotUnavailable = "slot_unavailable"
	ReasonSlotNotFound    = "slot_not_found"
)

// BookingResult is the outcome of an atomic commit attempt. Exactly one
// of Order (on success) or Reason (on failure) is populated.
type BookingResult struct {
	Booked bool   `json:"booked"`
	Order  *Order `json:"order,omitempty"`
	Reason string `json:"reason,omitempty"`
}

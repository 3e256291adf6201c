// Package booking defines the slot availability and booking-commit
// contracts the conversation engine consumes, plus the backends that
// implement them.
package booking

import (
	"context"
	"errors"

	"github.com/agendazap/agendazap/internal/models"
)

var (
	// ErrBackendUnavailable wraps transport-level failures talking to the
	// order backend. Distinct from a failed commit, which is an ordinary
	// BookingResult branch.
	ErrBackendUnavailable = errors.New("booking backend unavailable")
)

// AvailabilityProvider exposes the read contract: free slots for an
// endpoint on a given date (YYYY-MM-DD). Implementations must only
// return slots whose status is available, ordered by start time.
type AvailabilityProvider interface {
	AvailableSlots(ctx context.Context, endpoint, date string) ([]models.Slot, error)
}

// Committer exposes the write contract: atomically re-validate that the
// slot is still available, mark it booked and create the order in the
// same logical operation. A slot lost to another customer between fetch
// and confirm comes back as BookingResult{Booked: false}, not an error.
type Committer interface {
	BookSlot(ctx context.Context, req models.BookingRequest) (models.BookingResult, error)
}

// Backend combines both contracts; every backend in this package
// implements it.
type Backend interface {
	AvailabilityProvider
	Committer
}

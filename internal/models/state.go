// Package models defines conversation state structures for agendazap flows.
package models

import (
	"errors"
	"time"
)

// StateType identifies where a conversation currently sits in the
// appointment-booking flow.
type StateType string

const (
	// StateStart is the idle state; the next message triggers the main menu.
	StateStart StateType = "START"
	// StateAwaitingName waits for the customer's name.
	StateAwaitingName StateType = "AWAITING_NAME"
	// StateAwaitingServiceChoice waits for a selection from the service catalog.
	StateAwaitingServiceChoice StateType = "AWAITING_SERVICE_CHOICE"
	// StateAwaitingDateChoice waits for today/tomorrow/other-date or a DD/MM date.
	StateAwaitingDateChoice StateType = "AWAITING_DATE_CHOICE"
	// StateAwaitingCustomDate waits for a typed DD/MM date.
	StateAwaitingCustomDate StateType = "AWAITING_CUSTOM_DATE"
	// StateAwaitingTimeChoice waits for a selection from the fetched slots.
	StateAwaitingTimeChoice StateType = "AWAITING_TIME_CHOICE"
	// StateAwaitingConfirmation waits for a yes/no on the assembled booking.
	StateAwaitingConfirmation StateType = "AWAITING_CONFIRMATION"
)

// IsValidState reports whether st is a known conversation state.
func IsValidState(st StateType) bool {
	switch st {
	case StateStart, StateAwaitingName, StateAwaitingServiceChoice,
		StateAwaitingDateChoice, StateAwaitingCustomDate,
		StateAwaitingTimeChoice, StateAwaitingConfirmation:
		return true
	default:
		return false
	}
}

// SlotStatus is the lifecycle of a bookable time unit.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

// Slot is a bookable time unit as read from the availability provider.
// The conversation engine only ever observes available slots.
type Slot struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"start_time"`
	Endpoint  string     `json:"endpoint"`
	Status    SlotStatus `json:"status"`
}

// Service is one entry of the static service catalog offered in the flow.
type Service struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// Draft is the in-progress booking accumulated across a conversation
// before commit. CandidateSlots is transient: populated while the
// conversation sits in AWAITING_TIME_CHOICE and cleared once a slot is
// chosen.
type Draft struct {
	CustomerName      string `json:"customer_name,omitempty"`
	CustomerPhone     string `json:"customer_phone,omitempty"`
	ServiceName       string `json:"service_name,omitempty"`
	ServicePriceCents int64  `json:"service_price_cents,omitempty"`
	// AppointmentDate is a date-only value in YYYY-MM-DD form.
	AppointmentDate string `json:"appointment_date,omitempty"`
	CandidateSlots  []Slot `json:"candidate_slots,omitempty"`
	ChosenSlotID    string `json:"chosen_slot_id,omitempty"`
	// ChosenSlotTime is the display time of the chosen slot in HH:MM form.
	ChosenSlotTime string `json:"chosen_slot_time,omitempty"`
}

// ConversationState is the persisted record for one (endpoint, customer)
// pair. It is created lazily on first contact and reused indefinitely.
type ConversationState struct {
	State StateType `json:"state"`
	Draft Draft     `json:"draft"`
	// ManualMode marks the conversation as taken over by a human
	// operator. The record preserves the flag across turns; see the
	// engine for how (and whether) it is consumed.
	ManualMode bool      `json:"manual_mode,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// NewConversationState returns the initial empty state.
func NewConversationState() ConversationState {
	now := time.Now()
	return ConversationState{State: StateStart, CreatedAt: now, UpdatedAt: now}
}

// Reset clears the draft and returns the conversation to the start
// state. The manual-mode flag and creation time survive the reset.
func (c *ConversationState) Reset() {
	c.State = StateStart
	c.Draft = Draft{}
	c.UpdatedAt = time.Now()
}

// State/draft invariant errors.
var (
	ErrNoCandidateSlots = errors.New("awaiting time choice with no candidate slots")
	ErrNoChosenSlot     = errors.New("awaiting confirmation with no chosen slot")
	ErrUnknownState     = errors.New("unknown conversation state")
)

// CheckInvariants verifies the state/draft coupling rules: the time-choice
// state requires a non-empty candidate slot list fetched for the chosen
// date, and the confirmation state requires a chosen slot.
func (c *ConversationState) CheckInvariants() error {
	if !IsValidState(c.State) {
		return ErrUnknownState
	}
	if c.State == StateAwaitingTimeChoice && (len(c.Draft.CandidateSlots) == 0 || c.Draft.AppointmentDate == "") {
		return ErrNoCandidateSlots
	}
	if c.State == StateAwaitingConfirmation && c.Draft.ChosenSlotID == "" {
		return ErrNoChosenSlot
	}
	return nil
}

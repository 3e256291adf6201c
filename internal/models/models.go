// Package models defines the core data structures for agendazap.
//
// It includes the inbound/outbound message shapes exchanged with channel
// adapters and the booking types shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for inbound payloads.
const (
	// MaxMessageTextLength defines the maximum accepted length for inbound text.
	MaxMessageTextLength = 4096
	// MinPhoneDigits defines the minimum number of digits in a canonical phone number.
	MinPhoneDigits = 6
)

// Error variables for better error handling and testability.
var (
	ErrEmptySender      = errors.New("sender cannot be empty")
	ErrEmptyMessage     = errors.New("message carries neither text nor a selection")
	ErrMessageTooLong   = errors.New("message text exceeds maximum length")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrEmptyReply       = errors.New("reply carries neither text nor a menu")
	ErrEmptyMenuOptions = errors.New("menu must have at least one option")
)

// InteractiveReply is a structured selection from a previously rendered
// menu: an opaque option ID plus the display title the channel echoed back.
type InteractiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// IncomingMessage is the single inbound event shape consumed by the
// conversation engine, regardless of which channel adapter produced it.
type IncomingMessage struct {
	// MessageID is the provider's message identifier, used for dedup
	// under at-least-once webhook delivery. May be empty for channels
	// that deliver exactly once in-process.
	MessageID string `json:"message_id,omitempty"`
	// From is the sender's phone number. Channel adapters canonicalize
	// it to digits-only form before the message reaches the engine.
	From        string            `json:"from"`
	Text        string            `json:"text,omitempty"`
	Interactive *InteractiveReply `json:"interactive,omitempty"`
	Time        time.Time         `json:"time,omitempty"`
}

// Validate checks an inbound message before processing.
func (m *IncomingMessage) Validate() error {
	if m.From == "" {
		return ErrEmptySender
	}
	if m.Text == "" && m.Interactive == nil {
		return ErrEmptyMessage
	}
	if len(m.Text) > MaxMessageTextLength {
		return ErrMessageTooLong
	}
	return nil
}

// MenuOption is one selectable row of an interactive menu.
type MenuOption struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Menu is a structured list message. Channels without native list
// support render it as numbered text.
type Menu struct {
	Body    string       `json:"body"`
	Button  string       `json:"button,omitempty"`
	Options []MenuOption `json:"options"`
}

// Reply is the outbound payload produced by the conversation engine:
// either plain text or an interactive menu. The engine never performs
// the network send itself.
type Reply struct {
	Text string `json:"text,omitempty"`
	Menu *Menu  `json:"menu,omitempty"`
}

// Validate checks that a reply is sendable.
func (r *Reply) Validate() error {
	if r.Text == "" && r.Menu == nil {
		return ErrEmptyReply
	}
	if r.Menu != nil && len(r.Menu.Options) == 0 {
		return ErrEmptyMenuOptions
	}
	return nil
}

// OrderItem is one line of a booking order.
type OrderItem struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

// Order is a confirmed booking as returned by the booking committer.
type Order struct {
	ID            string      `json:"id"`
	Endpoint      string      `json:"endpoint"`
	SlotID        string      `json:"slot_id"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
	Items         []OrderItem `json:"items"`
	TotalCents    int64       `json:"total_cents"`
	CreatedAt     time.Time   `json:"created_at"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

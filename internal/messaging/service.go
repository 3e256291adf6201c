// Package messaging provides the channel services that connect the
// conversation engine to WhatsApp providers, plus the dispatcher that
// routes inbound messages through the engine and queues the replies.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

// Constants for channel service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for inbound message channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction for one
// WhatsApp provider.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Returns the canonicalized recipient and an
	// error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendReply delivers a reply, rendering the menu the way the
	// provider supports (interactive list or numbered text).
	SendReply(ctx context.Context, to string, reply models.Reply) error

	// Start begins any background processing (e.g., event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming customer messages.
	Responses() <-chan models.IncomingMessage
}

// canonicalizePhone strips all non-digit characters and validates the
// result. Differently formatted representations of the same number
// ("+55 11 99999-0000", "5511999990000") collapse to one canonical key.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < models.MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, models.MinPhoneDigits)
	}
	return canonical, nil
}

// Package store provides storage backends for agendazap.
//
// It persists conversation states (as one collection per channel
// endpoint), inbound message dedup records, and the reply outbox, over
// SQLite or PostgreSQL with an in-memory fallback for development.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

// Opts holds configuration options for building a store.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-looking DSNs and
// "sqlite" otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Outbox message statuses.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSending = "sending"
	OutboxStatusSent    = "sent"
)

// OutboxMessage is one queued outbound reply awaiting delivery.
type OutboxMessage struct {
	ID            int64      `json:"id"`
	Endpoint      string     `json:"endpoint"`
	Recipient     string     `json:"recipient"`
	PayloadJSON   string     `json:"payload_json"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Store is the persistence contract shared by all backends.
type Store interface {
	// GetConversationStates loads the full conversation collection for an
	// endpoint, keyed by canonical customer phone. A missing endpoint
	// yields an empty map, not an error.
	GetConversationStates(endpoint string) (map[string]models.ConversationState, error)

	// SaveConversationStates writes the full collection for an endpoint.
	SaveConversationStates(endpoint string, states map[string]models.ConversationState) error

	// RecordInbound inserts a dedup record for a provider message ID.
	// Returns false if the message was already recorded (duplicate
	// delivery); processing must then be skipped.
	RecordInbound(messageID, customer string) (bool, error)

	// MarkProcessed sets the processed timestamp for a message.
	MarkProcessed(messageID string) error

	// EnqueueReply adds an outbound reply to the outbox.
	EnqueueReply(msg OutboxMessage) error

	// ClaimDueReplies atomically claims up to limit pending replies that
	// are due, moving them to the sending status.
	ClaimDueReplies(now time.Time, limit int) ([]OutboxMessage, error)

	// MarkReplySent marks a claimed reply as delivered.
	MarkReplySent(id int64) error

	// FailReply records a delivery failure and schedules the next attempt.
	FailReply(id int64, reason string, nextAttempt time.Time) error

	// RequeueStaleSending requeues replies stuck in sending state since
	// before the given time (crash recovery). Returns the count requeued.
	RequeueStaleSending(before time.Time) (int64, error)

	Close() error
}

// InMemoryStore is a Store for development and tests.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]map[string]models.ConversationState
	dedup         map[string]dedupRecord
	outbox        []OutboxMessage
	nextOutboxID  int64
}

type dedupRecord struct {
	customer    string
	receivedAt  time.Time
	processedAt *time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]map[string]models.ConversationState),
		dedup:         make(map[string]dedupRecord),
		nextOutboxID:  1,
	}
}

func (s *InMemoryStore) GetConversationStates(endpoint string) (map[string]models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.ConversationState, len(s.conversations[endpoint]))
	for k, v := range s.conversations[endpoint] {
		out[k] = v
	}
	return out, nil
}

func (s *InMemoryStore) SaveConversationStates(endpoint string, states map[string]models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]models.ConversationState, len(states))
	for k, v := range states {
		copied[k] = v
	}
	s.conversations[endpoint] = copied
	return nil
}

func (s *InMemoryStore) RecordInbound(messageID, customer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dedup[messageID]; exists {
		return false, nil
	}
	s.dedup[messageID] = dedupRecord{customer: customer, receivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now()
		rec.processedAt = &now
		s.dedup[messageID] = rec
	}
	return nil
}

func (s *InMemoryStore) EnqueueReply(msg OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = s.nextOutboxID
	s.nextOutboxID++
	msg.Status = OutboxStatusPending
	now := time.Now()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	s.outbox = append(s.outbox, msg)
	return nil
}

func (s *InMemoryStore) ClaimDueReplies(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []OutboxMessage
	for i := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		m := &s.outbox[i]
		if m.Status != OutboxStatusPending {
			continue
		}
		if m.NextAttemptAt != nil && m.NextAttemptAt.After(now) {
			continue
		}
		m.Status = OutboxStatusSending
		m.UpdatedAt = now
		claimed = append(claimed, *m)
	}
	return claimed, nil
}

func (s *InMemoryStore) MarkReplySent(id int64) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusSent
	})
}

func (s *InMemoryStore) FailReply(id int64, reason string, nextAttempt time.Time) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusPending
		m.Attempts++
		m.LastError = reason
		m.NextAttemptAt = &nextAttempt
	})
}

func (s *InMemoryStore) RequeueStaleSending(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.outbox {
		m := &s.outbox[i]
		if m.Status == OutboxStatusSending && m.UpdatedAt.Before(before) {
			m.Status = OutboxStatusPending
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) updateOutbox(id int64, fn func(*OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			fn(&s.outbox[i])
			s.outbox[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

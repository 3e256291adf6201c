package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/store"
)

// ConvKey identifies a single conversation: the channel endpoint the
// customer wrote to, plus the customer's canonical phone digits. Phone
// numbers are canonicalized once at the channel boundary so differently
// formatted representations of the same number never produce distinct
// keys.
type ConvKey struct {
	Endpoint string
	Customer string
}

func (k ConvKey) String() string {
	return k.Endpoint + "/" + k.Customer
}

// StateStore defines the persistence contract for conversation state.
type StateStore interface {
	// Load returns the saved state for a key, or a fresh start state if
	// none exists. Absence is a valid, common case (a brand-new
	// conversation), never an error.
	Load(ctx context.Context, key ConvKey) (models.ConversationState, error)

	// Save persists the full state for a key.
	Save(ctx context.Context, key ConvKey, cs models.ConversationState) error
}

// StoreBackedStateManager implements StateStore over a store.Store.
//
// States for one endpoint are persisted as a single collection. Save
// re-reads the collection, replaces this conversation's entry and writes
// the collection back, so a save never clobbers sibling customers'
// entries that changed since our load. Two concurrent writers for the
// same customer are not protected here; the engine serializes those with
// a per-key lock.
type StoreBackedStateManager struct {
	store store.Store
}

// NewStoreBackedStateManager creates a StateStore backed by a Store.
func NewStoreBackedStateManager(st store.Store) *StoreBackedStateManager {
	slog.Debug("Creating StoreBackedStateManager")
	return &StoreBackedStateManager{store: st}
}

// Load retrieves the conversation state for a key.
func (sm *StoreBackedStateManager) Load(ctx context.Context, key ConvKey) (models.ConversationState, error) {
	states, err := sm.store.GetConversationStates(key.Endpoint)
	if err != nil {
		slog.Error("StateManager Load error", "error", err, "key", key.String())
		return models.NewConversationState(), fmt.Errorf("load conversation states for %s: %w", key.Endpoint, err)
	}

	cs, ok := states[key.Customer]
	if !ok {
		slog.Debug("StateManager Load: new conversation", "key", key.String())
		return models.NewConversationState(), nil
	}
	if !models.IsValidState(cs.State) {
		// A corrupted record must not wedge the customer.
		slog.Warn("StateManager Load: unknown persisted state, resetting", "key", key.String(), "state", cs.State)
		cs.Reset()
	}
	slog.Debug("StateManager Load found", "key", key.String(), "state", cs.State)
	return cs, nil
}

// Save persists the conversation state using the merge-then-write cycle.
func (sm *StoreBackedStateManager) Save(ctx context.Context, key ConvKey, cs models.ConversationState) error {
	states, err := sm.store.GetConversationStates(key.Endpoint)
	if err != nil {
		slog.Error("StateManager Save read error", "error", err, "key", key.String())
		return fmt.Errorf("reload conversation states for %s: %w", key.Endpoint, err)
	}
	if states == nil {
		states = make(map[string]models.ConversationState)
	}

	cs.UpdatedAt = time.Now()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = cs.UpdatedAt
	}
	states[key.Customer] = cs

	if err := sm.store.SaveConversationStates(key.Endpoint, states); err != nil {
		slog.Error("StateManager Save write error", "error", err, "key", key.String(), "state", cs.State)
		return fmt.Errorf("save conversation states for %s: %w", key.Endpoint, err)
	}
	slog.Debug("StateManager Save succeeded", "key", key.String(), "state", cs.State)
	return nil
}

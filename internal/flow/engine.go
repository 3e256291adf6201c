package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agendazap/agendazap/internal/booking"
	"github.com/agendazap/agendazap/internal/models"
)

// Engine is the conversation state machine. Given the current persisted
// state and a normalized inbound event it computes the next state, the
// outbound reply, and any booking side effects. It owns all transition
// logic; persistence stays behind the StateStore and the booking
// collaborators behind their contracts.
type Engine struct {
	states       StateStore
	availability booking.AvailabilityProvider
	committer    booking.Committer
	services     []models.Service
	norm         *Normalizer
	now          func() time.Time

	// locks serializes the load-transition-save cycle per conversation,
	// so two quick messages from the same customer cannot interleave and
	// corrupt the draft. Entries are retained for the life of the
	// process.
	mu    sync.Mutex
	locks map[ConvKey]*sync.Mutex
}

// NewEngine creates a conversation engine over the given collaborators.
func NewEngine(states StateStore, availability booking.AvailabilityProvider, committer booking.Committer, services []models.Service) *Engine {
	norm := NewNormalizer(services)
	return &Engine{
		states:       states,
		availability: availability,
		committer:    committer,
		services:     services,
		norm:         norm,
		now:          time.Now,
		locks:        make(map[ConvKey]*sync.Mutex),
	}
}

// SetClock injects a clock for tests. The normalizer shares it so date
// validation and today/tomorrow shortcuts agree.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.norm.Now = now
}

func (e *Engine) convLock(key ConvKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// HandleMessage runs one conversation turn: load state, normalize the
// inbound event, transition, save, and return the reply to send. The
// sender must already be canonicalized by the channel adapter.
//
// Any panic during transition logic is caught here: the conversation is
// force-reset to the start state and the customer receives a generic
// apology, never a raw failure.
func (e *Engine) HandleMessage(ctx context.Context, endpoint string, msg models.IncomingMessage) (reply models.Reply, err error) {
	if verr := msg.Validate(); verr != nil {
		return models.Reply{}, verr
	}
	key := ConvKey{Endpoint: endpoint, Customer: msg.From}

	lock := e.convLock(key)
	lock.Lock()
	defer lock.Unlock()

	var (
		cs      models.ConversationState
		loadErr error
	)
	loaded := false

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine recovered from panic during transition", "key", key.String(), "panic", r)
			if loaded {
				// Reset keeps ManualMode and CreatedAt, same as the cancel
				// path; a panic must not re-automate a human-assisted thread.
				cs.Reset()
			} else {
				cs = models.NewConversationState()
			}
			if saveErr := e.states.Save(ctx, key, cs); saveErr != nil {
				slog.Error("Engine failed to save reset state after panic", "error", saveErr, "key", key.String())
			}
			reply = models.Reply{Text: msgGenericApology}
			err = nil
		}
	}()

	cs, loadErr = e.states.Load(ctx, key)
	if loadErr != nil {
		// Degraded mode: proceed with a fresh state for this turn rather
		// than dropping the message.
		slog.Error("Engine proceeding with fresh state after load failure", "error", loadErr, "key", key.String())
		cs = models.NewConversationState()
	} else {
		loaded = true
	}
	// Manual mode is loaded and persisted with the record but no branch
	// consumes it in this flow yet; see DESIGN.md.
	cs.Draft.CustomerPhone = msg.From

	trigger := e.norm.Normalize(cs, msg)
	slog.Debug("Engine handling turn", "key", key.String(), "state", cs.State, "trigger", trigger.Kind)

	if trigger.Kind == TriggerCancel {
		cs.Reset()
		reply = models.Reply{Text: msgCancelled}
	} else {
		reply = e.transition(ctx, &cs, trigger, endpoint)
	}

	if ierr := cs.CheckInvariants(); ierr != nil {
		slog.Error("Engine state invariant violated after transition, resetting", "error", ierr, "key", key.String(), "state", cs.State)
		cs.Reset()
		reply = models.Reply{Text: msgGenericApology}
	}

	if saveErr := e.states.Save(ctx, key, cs); saveErr != nil {
		// Documented degraded mode: the reply still goes out, the next
		// inbound message re-loads the previous state.
		slog.Error("Engine state save failed, continuing with in-memory state for this turn", "error", saveErr, "key", key.String())
	}
	return reply, nil
}

package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

// transition applies one trigger to the conversation, mutating cs in
// place and returning the reply. Invalid triggers leave cs untouched and
// re-prompt.
func (e *Engine) transition(ctx context.Context, cs *models.ConversationState, trg Trigger, endpoint string) models.Reply {
	if trg.Kind == TriggerInvalid {
		return e.helpFor(*cs)
	}

	switch cs.State {
	case models.StateStart:
		return e.fromStart(cs, trg)
	case models.StateAwaitingName:
		return e.fromAwaitingName(cs, trg)
	case models.StateAwaitingServiceChoice:
		return e.fromAwaitingServiceChoice(cs, trg)
	case models.StateAwaitingDateChoice:
		return e.fromAwaitingDateChoice(ctx, cs, trg, endpoint)
	case models.StateAwaitingCustomDate:
		return e.fromAwaitingCustomDate(ctx, cs, trg, endpoint)
	case models.StateAwaitingTimeChoice:
		return e.fromAwaitingTimeChoice(cs, trg)
	case models.StateAwaitingConfirmation:
		return e.fromAwaitingConfirmation(ctx, cs, trg, endpoint)
	}
	return e.helpFor(*cs)
}

func (e *Engine) fromStart(cs *models.ConversationState, trg Trigger) models.Reply {
	switch trg.Kind {
	case TriggerSchedule:
		cs.State = models.StateAwaitingName
		return models.Reply{Text: msgAskName}
	case TriggerAttendant:
		// Handoff message only; the conversation stays at start.
		return models.Reply{Text: msgHandoff}
	}
	return mainMenu()
}

func (e *Engine) fromAwaitingName(cs *models.ConversationState, trg Trigger) models.Reply {
	if trg.Kind != TriggerName {
		return e.helpFor(*cs)
	}
	cs.Draft.CustomerName = trg.Text
	cs.State = models.StateAwaitingServiceChoice
	return serviceMenu(cs.Draft.CustomerName, e.services)
}

func (e *Engine) fromAwaitingServiceChoice(cs *models.ConversationState, trg Trigger) models.Reply {
	if trg.Kind != TriggerIndex {
		return e.helpFor(*cs)
	}
	svc := e.services[trg.Index-1]
	cs.Draft.ServiceName = svc.Name
	cs.Draft.ServicePriceCents = svc.PriceCents
	cs.State = models.StateAwaitingDateChoice
	return dateMenu(svc.Name)
}

func (e *Engine) fromAwaitingDateChoice(ctx context.Context, cs *models.ConversationState, trg Trigger, endpoint string) models.Reply {
	switch trg.Kind {
	case TriggerToday:
		return e.setDateAndFetch(ctx, cs, e.today(), endpoint)
	case TriggerTomorrow:
		return e.setDateAndFetch(ctx, cs, e.today().AddDate(0, 0, 1), endpoint)
	case TriggerOtherDate:
		cs.State = models.StateAwaitingCustomDate
		return models.Reply{Text: msgAskCustomDate}
	case TriggerDate:
		return e.setDateAndFetch(ctx, cs, trg.Date, endpoint)
	}
	return e.helpFor(*cs)
}

func (e *Engine) fromAwaitingCustomDate(ctx context.Context, cs *models.ConversationState, trg Trigger, endpoint string) models.Reply {
	if trg.Kind != TriggerDate {
		return e.helpFor(*cs)
	}
	return e.setDateAndFetch(ctx, cs, trg.Date, endpoint)
}

// setDateAndFetch stores the chosen date and re-fetches availability at
// that moment, so slots taken by other customers' finalized bookings are
// already excluded. A race between "shown as available" and "confirmed"
// remains and is resolved by the committer at commit time.
func (e *Engine) setDateAndFetch(ctx context.Context, cs *models.ConversationState, date time.Time, endpoint string) models.Reply {
	dateStr := date.Format("2006-01-02")

	slots, err := e.availability.AvailableSlots(ctx, endpoint, dateStr)
	if err != nil {
		// The customer can still pick a different date, so no reset here.
		slog.Error("Engine availability fetch failed", "error", err, "endpoint", endpoint, "date", dateStr)
		cs.State = models.StateAwaitingDateChoice
		return models.Reply{Text: msgBackendDown}
	}
	if len(slots) == 0 {
		cs.State = models.StateAwaitingDateChoice
		cs.Draft.AppointmentDate = ""
		cs.Draft.CandidateSlots = nil
		return noSlotsForDate(dateStr)
	}

	cs.Draft.AppointmentDate = dateStr
	cs.Draft.CandidateSlots = slots
	cs.State = models.StateAwaitingTimeChoice
	return slotMenu(dateStr, slots)
}

func (e *Engine) fromAwaitingTimeChoice(cs *models.ConversationState, trg Trigger) models.Reply {
	if trg.Kind != TriggerIndex {
		return e.helpFor(*cs)
	}
	slot := cs.Draft.CandidateSlots[trg.Index-1]
	cs.Draft.ChosenSlotID = slot.ID
	cs.Draft.ChosenSlotTime = slot.StartTime.Format("15:04")
	// The candidate list is transient; it was only needed to resolve the
	// index and would go stale the moment we leave this state.
	cs.Draft.CandidateSlots = nil
	cs.State = models.StateAwaitingConfirmation
	return confirmationMenu(cs.Draft)
}

func (e *Engine) fromAwaitingConfirmation(ctx context.Context, cs *models.ConversationState, trg Trigger, endpoint string) models.Reply {
	switch trg.Kind {
	case TriggerDeny:
		cs.Reset()
		return models.Reply{Text: msgDeclined}
	case TriggerAffirm:
		draft := cs.Draft
		req := models.BookingRequest{
			Endpoint:      endpoint,
			SlotID:        draft.ChosenSlotID,
			CustomerName:  draft.CustomerName,
			CustomerPhone: draft.CustomerPhone,
			Items: []models.OrderItem{{
				Name:       draft.ServiceName,
				PriceCents: draft.ServicePriceCents,
				Quantity:   1,
			}},
			TotalCents: draft.ServicePriceCents,
		}

		result, err := e.committer.BookSlot(ctx, req)
		// The conversation resets regardless of the commit outcome; a
		// half-confirmed booking must never be retried with stale data.
		cs.Reset()
		if err != nil {
			slog.Error("Engine booking commit failed", "error", err, "slotID", req.SlotID)
			return models.Reply{Text: msgCommitFailed}
		}
		if !result.Booked {
			// Lost the slot to a competing booking: ordinary outcome.
			// Never retry the same slot, never silently pick another.
			slog.Info("Engine booking lost to competing commit", "slotID", req.SlotID, "reason", result.Reason)
			return models.Reply{Text: msgSlotTaken}
		}
		slog.Info("Engine booking confirmed", "slotID", req.SlotID, "orderID", result.Order.ID)
		return bookingConfirmed(draft)
	}
	return e.helpFor(*cs)
}

func (e *Engine) today() time.Time {
	now := e.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Package flow implements the appointment-booking conversation engine:
// input normalization, the state machine, and its persistence glue.
package flow

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/agendazap/agendazap/internal/models"
)

// TriggerKind is the finite alphabet the state machine branches on.
type TriggerKind string

const (
	// TriggerInvalid means the input is not understood in the current
	// state; the machine re-prompts without mutating the draft.
	TriggerInvalid   TriggerKind = "INVALID"
	TriggerCancel    TriggerKind = "CANCEL"
	TriggerSchedule  TriggerKind = "SCHEDULE"
	TriggerAttendant TriggerKind = "ATTENDANT"
	TriggerName      TriggerKind = "NAME"
	TriggerIndex     TriggerKind = "INDEX"
	TriggerToday     TriggerKind = "TODAY"
	TriggerTomorrow  TriggerKind = "TOMORROW"
	TriggerOtherDate TriggerKind = "OTHER_DATE"
	TriggerDate      TriggerKind = "DATE"
	TriggerAffirm    TriggerKind = "AFFIRM"
	TriggerDeny      TriggerKind = "DENY"
)

// Trigger is a normalized inbound event. Index is 1-based and already
// bounds-checked against the list it refers to; Date carries a resolved
// day-granularity date; Text carries the trimmed original for name input.
type Trigger struct {
	Kind  TriggerKind
	Index int
	Date  time.Time
	Text  string
}

// Interactive option ID prefixes rendered into menus and echoed back by
// the channel. Structured IDs take priority over title text.
const (
	optionIDSchedule  = "menu_agendar"
	optionIDAttendant = "menu_atendente"
	optionIDService   = "svc_"
	optionIDToday     = "date_hoje"
	optionIDTomorrow  = "date_amanha"
	optionIDOtherDate = "date_outra"
	optionIDSlot      = "slot_"
	optionIDConfirm   = "confirm_sim"
	optionIDDecline   = "confirm_nao"
)

// cancelWords aborts the flow from any state.
var cancelWords = map[string]bool{
	"sair":     true,
	"cancelar": true,
	"encerrar": true,
}

var dayMonthRe = regexp.MustCompile(`^(\d{1,2})\s*/\s*(\d{1,2})$`)

// Normalizer maps heterogeneous inbound representations (free text,
// numbered replies, interactive option IDs) into Triggers. It needs the
// service catalog to bound-check service indices and the current
// conversation state to resolve slot indices and per-state vocabularies.
type Normalizer struct {
	Services []models.Service
	// Now is injectable for date-validation tests.
	Now func() time.Time
}

// NewNormalizer creates a Normalizer over the given service catalog.
func NewNormalizer(services []models.Service) *Normalizer {
	return &Normalizer{Services: services, Now: time.Now}
}

// Normalize resolves a raw inbound message into a Trigger for the
// conversation's current state. It never fails: unusable input yields
// TriggerInvalid.
func (n *Normalizer) Normalize(cs models.ConversationState, msg models.IncomingMessage) Trigger {
	id := ""
	text := strings.TrimSpace(msg.Text)
	if msg.Interactive != nil {
		id = strings.TrimSpace(msg.Interactive.ID)
		if text == "" {
			text = strings.TrimSpace(msg.Interactive.Title)
		}
	}
	lower := strings.ToLower(text)

	if cancelWords[lower] || id == "cancel" {
		return Trigger{Kind: TriggerCancel}
	}

	var trg Trigger
	switch cs.State {
	case models.StateStart:
		trg = n.normalizeStart(id, lower)
	case models.StateAwaitingName:
		trg = normalizeName(text)
	case models.StateAwaitingServiceChoice:
		trg = normalizeIndex(id, optionIDService, lower, len(n.Services))
	case models.StateAwaitingDateChoice:
		trg = n.normalizeDateChoice(id, lower)
	case models.StateAwaitingCustomDate:
		trg = n.normalizeCustomDate(lower)
	case models.StateAwaitingTimeChoice:
		trg = normalizeIndex(id, optionIDSlot, lower, len(cs.Draft.CandidateSlots))
	case models.StateAwaitingConfirmation:
		trg = normalizeConfirmation(id, lower)
	default:
		trg = Trigger{Kind: TriggerInvalid}
	}

	slog.Debug("Normalizer resolved trigger", "state", cs.State, "kind", trg.Kind, "index", trg.Index)
	return trg
}

func (n *Normalizer) normalizeStart(id, lower string) Trigger {
	switch {
	case id == optionIDSchedule, lower == "agendar", lower == "1":
		return Trigger{Kind: TriggerSchedule}
	case id == optionIDAttendant, lower == "atendente", lower == "2":
		return Trigger{Kind: TriggerAttendant}
	}
	return Trigger{Kind: TriggerInvalid}
}

func normalizeName(text string) Trigger {
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 2 {
		return Trigger{Kind: TriggerInvalid}
	}
	return Trigger{Kind: TriggerName, Text: text}
}

// normalizeIndex resolves a positional selection against a list of n
// items, from either a structured "prefixN" option ID or a bare number.
// Out-of-range selections are Invalid, never a crash.
func normalizeIndex(id, prefix, lower string, n int) Trigger {
	raw := lower
	if strings.HasPrefix(id, prefix) {
		raw = strings.TrimPrefix(id, prefix)
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 1 || idx > n {
		return Trigger{Kind: TriggerInvalid}
	}
	return Trigger{Kind: TriggerIndex, Index: idx}
}

func (n *Normalizer) normalizeDateChoice(id, lower string) Trigger {
	switch {
	case id == optionIDToday, lower == "hoje", lower == "1":
		return Trigger{Kind: TriggerToday}
	case id == optionIDTomorrow, lower == "amanha", lower == "amanhã", lower == "2":
		return Trigger{Kind: TriggerTomorrow}
	case id == optionIDOtherDate, lower == "outra data", lower == "outra", lower == "3":
		return Trigger{Kind: TriggerOtherDate}
	}
	return n.normalizeCustomDate(lower)
}

func (n *Normalizer) normalizeCustomDate(lower string) Trigger {
	date, ok := n.parseDayMonth(lower)
	if !ok {
		return Trigger{Kind: TriggerInvalid}
	}
	return Trigger{Kind: TriggerDate, Date: date}
}

func normalizeConfirmation(id, lower string) Trigger {
	switch {
	case id == optionIDConfirm, lower == "sim", lower == "confirmar", lower == "1":
		return Trigger{Kind: TriggerAffirm}
	case id == optionIDDecline, lower == "nao", lower == "não", lower == "2":
		return Trigger{Kind: TriggerDeny}
	}
	return Trigger{Kind: TriggerInvalid}
}

// parseDayMonth parses a DD/MM date against the current year. It rejects
// day/month pairs that do not form a real calendar date (no overflow:
// 31/02 is invalid, 29/02 only on leap years) and dates before today at
// day granularity. Today itself is accepted.
func (n *Normalizer) parseDayMonth(raw string) (time.Time, bool) {
	m := dayMonthRe.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}

	now := n.Now()
	date := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
	// time.Date normalizes overflow (31/02 becomes 02/03 or 03/03), so a
	// changed day or month means the input was not a real date.
	if date.Day() != day || date.Month() != time.Month(month) {
		return time.Time{}, false
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if date.Before(today) {
		return time.Time{}, false
	}
	return date, true
}

package flow

import (
	"testing"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

var testServices = []models.Service{
	{ID: "corte", Name: "Corte", PriceCents: 5000},
	{ID: "barba", Name: "Barba", PriceCents: 3500},
	{ID: "corte_barba", Name: "Corte + Barba", PriceCents: 7500},
}

func testNormalizer() *Normalizer {
	n := NewNormalizer(testServices)
	// A fixed Tuesday in mid-September for deterministic date checks.
	n.Now = func() time.Time {
		return time.Date(2026, time.September, 15, 10, 30, 0, 0, time.UTC)
	}
	return n
}

func stateIn(st models.StateType) models.ConversationState {
	cs := models.NewConversationState()
	cs.State = st
	return cs
}

func textMsg(text string) models.IncomingMessage {
	return models.IncomingMessage{MessageID: "m1", From: "5511999990000", Text: text}
}

func interactiveMsg(id, title string) models.IncomingMessage {
	return models.IncomingMessage{
		MessageID:   "m1",
		From:        "5511999990000",
		Interactive: &models.InteractiveReply{ID: id, Title: title},
	}
}

func TestNormalizeCancelFromAnyState(t *testing.T) {
	n := testNormalizer()
	states := []models.StateType{
		models.StateStart,
		models.StateAwaitingName,
		models.StateAwaitingServiceChoice,
		models.StateAwaitingDateChoice,
		models.StateAwaitingCustomDate,
		models.StateAwaitingTimeChoice,
		models.StateAwaitingConfirmation,
	}
	for _, st := range states {
		for _, word := range []string{"sair", "cancelar", "encerrar", "CANCELAR"} {
			trg := n.Normalize(stateIn(st), textMsg(word))
			if trg.Kind != TriggerCancel {
				t.Errorf("state %s, input %q: kind = %s, want CANCEL", st, word, trg.Kind)
			}
		}
		trg := n.Normalize(stateIn(st), interactiveMsg("cancel", "Cancelar"))
		if trg.Kind != TriggerCancel {
			t.Errorf("state %s, interactive cancel: kind = %s, want CANCEL", st, trg.Kind)
		}
	}
}

func TestNormalizeStart(t *testing.T) {
	n := testNormalizer()
	cases := []struct {
		msg  models.IncomingMessage
		want TriggerKind
	}{
		{textMsg("agendar"), TriggerSchedule},
		{textMsg("Agendar"), TriggerSchedule},
		{textMsg("1"), TriggerSchedule},
		{interactiveMsg("menu_agendar", "Agendar horário"), TriggerSchedule},
		{textMsg("atendente"), TriggerAttendant},
		{textMsg("2"), TriggerAttendant},
		{interactiveMsg("menu_atendente", "Falar com atendente"), TriggerAttendant},
		{textMsg("bom dia"), TriggerInvalid},
		{textMsg(""), TriggerInvalid},
	}
	for _, c := range cases {
		trg := n.Normalize(stateIn(models.StateStart), c.msg)
		if trg.Kind != c.want {
			t.Errorf("input %q/%v: kind = %s, want %s", c.msg.Text, c.msg.Interactive, trg.Kind, c.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	n := testNormalizer()
	cases := []struct {
		text string
		want TriggerKind
	}{
		{"Maria Silva", TriggerName},
		{"Li", TriggerName},
		{"José", TriggerName},
		{"M", TriggerInvalid},
		{"12", TriggerInvalid},
		{"  ", TriggerInvalid},
	}
	for _, c := range cases {
		trg := n.Normalize(stateIn(models.StateAwaitingName), textMsg(c.text))
		if trg.Kind != c.want {
			t.Errorf("name %q: kind = %s, want %s", c.text, trg.Kind, c.want)
		}
		if c.want == TriggerName && trg.Text != c.text {
			t.Errorf("name %q: text = %q, want original", c.text, trg.Text)
		}
	}
}

func TestNormalizeServiceIndexBounds(t *testing.T) {
	n := testNormalizer()
	cases := []struct {
		msg       models.IncomingMessage
		want      TriggerKind
		wantIndex int
	}{
		{textMsg("1"), TriggerIndex, 1},
		{textMsg("3"), TriggerIndex, 3},
		{interactiveMsg("svc_2", "Barba"), TriggerIndex, 2},
		{textMsg("0"), TriggerInvalid, 0},
		{textMsg("4"), TriggerInvalid, 0},
		{textMsg("-1"), TriggerInvalid, 0},
		{textMsg("abc"), TriggerInvalid, 0},
		{interactiveMsg("svc_9", "???"), TriggerInvalid, 0},
	}
	for _, c := range cases {
		trg := n.Normalize(stateIn(models.StateAwaitingServiceChoice), c.msg)
		if trg.Kind != c.want || trg.Index != c.wantIndex {
			t.Errorf("input %q/%v: got (%s, %d), want (%s, %d)",
				c.msg.Text, c.msg.Interactive, trg.Kind, trg.Index, c.want, c.wantIndex)
		}
	}
}

func TestNormalizeSlotIndexBounds(t *testing.T) {
	n := testNormalizer()
	cs := stateIn(models.StateAwaitingTimeChoice)
	cs.Draft.CandidateSlots = []models.Slot{
		{ID: "s1", StartTime: time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)},
		{ID: "s2", StartTime: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)},
	}

	if trg := n.Normalize(cs, textMsg("2")); trg.Kind != TriggerIndex || trg.Index != 2 {
		t.Errorf("in-range slot pick: got (%s, %d)", trg.Kind, trg.Index)
	}
	if trg := n.Normalize(cs, textMsg("3")); trg.Kind != TriggerInvalid {
		t.Errorf("out-of-range slot pick: kind = %s, want INVALID", trg.Kind)
	}
	if trg := n.Normalize(cs, textMsg("0")); trg.Kind != TriggerInvalid {
		t.Errorf("zero slot pick: kind = %s, want INVALID", trg.Kind)
	}
}

func TestNormalizeDateChoice(t *testing.T) {
	n := testNormalizer()
	cases := []struct {
		msg  models.IncomingMessage
		want TriggerKind
	}{
		{textMsg("hoje"), TriggerToday},
		{textMsg("1"), TriggerToday},
		{interactiveMsg("date_hoje", "Hoje"), TriggerToday},
		{textMsg("amanhã"), TriggerTomorrow},
		{textMsg("amanha"), TriggerTomorrow},
		{textMsg("2"), TriggerTomorrow},
		{textMsg("outra data"), TriggerOtherDate},
		{textMsg("3"), TriggerOtherDate},
		{textMsg("20/09"), TriggerDate},
		{textMsg("qualquer"), TriggerInvalid},
	}
	for _, c := range cases {
		trg := n.Normalize(stateIn(models.StateAwaitingDateChoice), c.msg)
		if trg.Kind != c.want {
			t.Errorf("input %q: kind = %s, want %s", c.msg.Text, trg.Kind, c.want)
		}
	}
}

func TestNormalizeCustomDate(t *testing.T) {
	// Now is fixed at 15/09/2026 (not a leap year).
	n := testNormalizer()
	cases := []struct {
		text string
		want TriggerKind
	}{
		{"15/09", TriggerDate}, // today is accepted
		{"16/09", TriggerDate},
		{"31/12", TriggerDate},
		{"1/10", TriggerDate},
		{"20 / 10", TriggerDate},
		{"14/09", TriggerInvalid}, // yesterday
		{"01/01", TriggerInvalid}, // far past
		{"31/02", TriggerInvalid}, // overflow date
		{"31/04", TriggerInvalid}, // April has 30 days
		{"29/02", TriggerInvalid}, // 2026 is not a leap year
		{"32/01", TriggerInvalid},
		{"15/13", TriggerInvalid},
		{"0/10", TriggerInvalid},
		{"amanhã", TriggerInvalid}, // shortcut words only work in date choice
		{"15-09", TriggerInvalid},
		{"15/09/2026", TriggerInvalid},
	}
	for _, c := range cases {
		trg := n.Normalize(stateIn(models.StateAwaitingCustomDate), textMsg(c.text))
		if trg.Kind != c.want {
			t.Errorf("date %q: kind = %s, want %s", c.text, trg.Kind, c.want)
		}
	}
}

func TestNormalizeCustomDateResolvesDay(t *testing.T) {
	n := testNormalizer()
	trg := n.Normalize(stateIn(models.StateAwaitingCustomDate), textMsg("20/09"))
	if trg.Kind != TriggerDate {
		t.Fatalf("kind = %s, want DATE", trg.Kind)
	}
	if got := trg.Date.Format("2006-01-02"); got != "2026-09-20" {
		t.Errorf("resolved date = %s, want 2026-09-20", got)
	}
}

func TestNormalizeConfirmation(t *testing.T) {
	n := testNormalizer()
	cases := []struct {
		msg  models.IncomingMessage
		want TriggerKind
	}{
		{textMsg("sim"), TriggerAffirm},
		{textMsg("confirmar"), TriggerAffirm},
		{textMsg("1"), TriggerAffirm},
		{interactiveMsg("confirm_sim", "Sim, confirmar"), TriggerAffirm},
		{textMsg("não"), TriggerDeny},
		{textMsg("nao"), TriggerDeny},
		{textMsg("2"), TriggerDeny},
		{interactiveMsg("confirm_nao", "Não, cancelar"), TriggerDeny},
		{textMsg("talvez"), TriggerInvalid},
	}
	for _, c := range cases {
		trg := n.Normalize(stateIn(models.StateAwaitingConfirmation), c.msg)
		if trg.Kind != c.want {
			t.Errorf("input %q: kind = %s, want %s", c.msg.Text, trg.Kind, c.want)
		}
	}
}

func TestNormalizeInteractiveIDTakesPriority(t *testing.T) {
	n := testNormalizer()
	// An option ID wins even when the title text would resolve differently.
	msg := interactiveMsg("svc_2", "1")
	trg := n.Normalize(stateIn(models.StateAwaitingServiceChoice), msg)
	if trg.Kind != TriggerIndex || trg.Index != 2 {
		t.Errorf("got (%s, %d), want (INDEX, 2)", trg.Kind, trg.Index)
	}
}

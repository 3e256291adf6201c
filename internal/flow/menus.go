package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

// Reply texts for the barbershop flow. Kept together so the copy can be
// reviewed in one place.
const (
	msgAskName        = "Olá! 💈 Vamos agendar seu horário.\nPra começar, me diga seu nome:"
	msgNameTooShort   = "Não consegui entender seu nome. Pode digitar de novo, por favor?"
	msgAskCustomDate  = "Digite a data desejada no formato DD/MM (por exemplo, 15/09):"
	msgInvalidDate    = "Essa data não é válida. Digite no formato DD/MM, com uma data de hoje em diante."
	msgCancelled      = "Tudo bem, agendamento cancelado. Quando quiser, é só mandar *agendar*. 👋"
	msgHandoff        = "Certo! Um atendente vai falar com você em instantes. 🙋"
	msgGenericApology = "Desculpe, tivemos um problema por aqui. 😕 Pode mandar sua mensagem de novo?"
	msgBackendDown    = "Não consegui consultar os horários agora. Tente novamente em instantes ou escolha outra data."
	msgCommitFailed   = "Não consegui concluir seu agendamento agora. 😕 Mande *agendar* para tentar de novo."
	msgSlotTaken      = "Poxa, esse horário acabou de ser reservado por outro cliente. 😔 Mande *agendar* para escolher outro."
	msgDeclined       = "Sem problemas, agendamento descartado. Mande *agendar* quando quiser recomeçar."
)

func mainMenu() models.Reply {
	return models.Reply{Menu: &models.Menu{
		Body:   "Olá! 💈 Bem-vindo. Como posso ajudar?",
		Button: "Escolher",
		Options: []models.MenuOption{
			{ID: optionIDSchedule, Title: "Agendar horário"},
			{ID: optionIDAttendant, Title: "Falar com atendente"},
		},
	}}
}

func serviceMenu(name string, services []models.Service) models.Reply {
	opts := make([]models.MenuOption, 0, len(services))
	for i, svc := range services {
		opts = append(opts, models.MenuOption{
			ID:          fmt.Sprintf("%s%d", optionIDService, i+1),
			Title:       svc.Name,
			Description: formatPrice(svc.PriceCents),
		})
	}
	return models.Reply{Menu: &models.Menu{
		Body:    fmt.Sprintf("Prazer, %s! Qual serviço você deseja?", firstName(name)),
		Button:  "Serviços",
		Options: opts,
	}}
}

func dateMenu(serviceName string) models.Reply {
	return models.Reply{Menu: &models.Menu{
		Body:   fmt.Sprintf("%s, ótima escolha! Para qual dia?", serviceName),
		Button: "Dia",
		Options: []models.MenuOption{
			{ID: optionIDToday, Title: "Hoje"},
			{ID: optionIDTomorrow, Title: "Amanhã"},
			{ID: optionIDOtherDate, Title: "Outra data"},
		},
	}}
}

func slotMenu(date string, slots []models.Slot) models.Reply {
	opts := make([]models.MenuOption, 0, len(slots))
	for i, s := range slots {
		opts = append(opts, models.MenuOption{
			ID:    fmt.Sprintf("%s%d", optionIDSlot, i+1),
			Title: s.StartTime.Format("15:04"),
		})
	}
	return models.Reply{Menu: &models.Menu{
		Body:    fmt.Sprintf("Horários livres para %s:", formatDateBR(date)),
		Button:  "Horários",
		Options: opts,
	}}
}

func confirmationMenu(d models.Draft) models.Reply {
	var b strings.Builder
	b.WriteString("Confere pra mim? ✂️\n")
	fmt.Fprintf(&b, "Cliente: %s\n", d.CustomerName)
	fmt.Fprintf(&b, "Serviço: %s (%s)\n", d.ServiceName, formatPrice(d.ServicePriceCents))
	fmt.Fprintf(&b, "Data: %s às %s", formatDateBR(d.AppointmentDate), d.ChosenSlotTime)
	return models.Reply{Menu: &models.Menu{
		Body:   b.String(),
		Button: "Confirmar",
		Options: []models.MenuOption{
			{ID: optionIDConfirm, Title: "Sim, confirmar"},
			{ID: optionIDDecline, Title: "Não, cancelar"},
		},
	}}
}

func bookingConfirmed(d models.Draft) models.Reply {
	return models.Reply{Text: fmt.Sprintf(
		"Agendado! ✅\n%s — %s às %s.\nAté lá, %s!",
		d.ServiceName, formatDateBR(d.AppointmentDate), d.ChosenSlotTime, firstName(d.CustomerName))}
}

func noSlotsForDate(date string) models.Reply {
	return models.Reply{Text: fmt.Sprintf(
		"Não há horários livres em %s. 😕 Escolha outro dia: *hoje*, *amanhã* ou digite uma data DD/MM.",
		formatDateBR(date))}
}

// helpFor re-prompts with context-appropriate guidance when input was
// not understood. The conversation state is never mutated on this path.
func (e *Engine) helpFor(cs models.ConversationState) models.Reply {
	switch cs.State {
	case models.StateAwaitingName:
		return models.Reply{Text: msgNameTooShort}
	case models.StateAwaitingServiceChoice:
		return prefixed("Não entendi. Escolha um dos serviços abaixo.", serviceMenu(cs.Draft.CustomerName, e.services))
	case models.StateAwaitingDateChoice:
		return prefixed("Não entendi. Escolha o dia ou digite uma data DD/MM.", dateMenu(cs.Draft.ServiceName))
	case models.StateAwaitingCustomDate:
		return models.Reply{Text: msgInvalidDate}
	case models.StateAwaitingTimeChoice:
		return prefixed("Não entendi. Escolha um dos horários abaixo.", slotMenu(cs.Draft.AppointmentDate, cs.Draft.CandidateSlots))
	case models.StateAwaitingConfirmation:
		return prefixed("Não entendi. Responda *sim* para confirmar ou *não* para cancelar.", confirmationMenu(cs.Draft))
	default:
		return mainMenu()
	}
}

func prefixed(note string, reply models.Reply) models.Reply {
	if reply.Menu != nil {
		reply.Menu.Body = note + "\n\n" + reply.Menu.Body
		return reply
	}
	reply.Text = note + "\n\n" + reply.Text
	return reply
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

// formatPrice renders cents as Brazilian currency, e.g. 5000 -> "R$ 50,00".
func formatPrice(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}

// formatDateBR renders a YYYY-MM-DD date as DD/MM.
func formatDateBR(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("02/01")
}

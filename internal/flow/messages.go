package flow

import (
	"fmt"
	"strings"

	"github.com/desklink/intakebot/internal/models"
)

// Outbound message texts for the intake conversation. The bot talks to
// Brazilian helpdesk users, so all sender-facing copy is Portuguese.

// greetingMessage opens a conversation that goes straight to the problem prompt.
func greetingMessage(name string) string {
	if name != "" {
		return fmt.Sprintf("Olá, %s! 👋 Sou o assistente virtual do suporte de TI.\n\nPara abrir um chamado, descreva o problema que você está enfrentando.", name)
	}
	return "Olá! 👋 Sou o assistente virtual do suporte de TI.\n\nPara abrir um chamado, descreva o problema que você está enfrentando."
}

// menuMessage opens a conversation with the known-user menu.
func menuMessage(name string) string {
	return fmt.Sprintf("Olá, %s! 👋 Sou o assistente virtual do suporte de TI.\n\nComo posso ajudar?\n1 - Abrir um chamado\n2 - Ver meus últimos chamados\n(Responda com 1 ou 2)", name)
}

const (
	menuInstructionMessage = "Responda com 1 para abrir um chamado ou 2 para ver seus últimos chamados."

	problemPromptMessage = "Certo! Descreva o problema que você está enfrentando."

	problemTooShortMessage = "Sua mensagem é muito curta. Por favor, descreva o problema com mais detalhes."

	priorityMenuMessage = "Entendido! ✅\n\nAgora escolha a prioridade do chamado:\n1 - Alta\n2 - Média\n3 - Baixa\n(Responda com 1, 2 ou 3)"

	priorityInvalidMessage = "Opção inválida. Responda com 1, 2 ou 3 para escolher a prioridade."

	ticketFailureMessage = "⚠️ Não foi possível criar seu chamado agora. Por favor, tente novamente em alguns minutos."

	notRegisteredMessage = "⚠️ Não encontramos seu cadastro no sistema. Procure a equipe de TI para se cadastrar antes de abrir chamados por aqui."

	noTicketsMessage = "Você ainda não tem chamados registrados.\n\n" + menuInstructionMessage
)

// priorityLabels maps stored priorities to the labels echoed to the sender.
var priorityLabels = map[models.Priority]string{
	models.PriorityAlta:  "Alta",
	models.PriorityMedia: "Média",
	models.PriorityBaixa: "Baixa",
}

// confirmationMessage reports the created ticket back to the sender.
func confirmationMessage(t *models.Ticket, problem string) string {
	return fmt.Sprintf("✅ Chamado %s criado com sucesso!\n\nProblema: %s\nPrioridade: %s\n\nNossa equipe entrará em contato em breve.",
		t.Number, problem, priorityLabels[t.Priority])
}

// recentTicketsMessage lists the sender's most recent tickets, newest first.
func recentTicketsMessage(tickets []models.Ticket) string {
	if len(tickets) == 0 {
		return noTicketsMessage
	}
	var b strings.Builder
	b.WriteString("Seus últimos chamados:\n")
	for _, t := range tickets {
		fmt.Fprintf(&b, "\n%s - %s (%s, prioridade %s)", t.Number, t.Title, t.Status, priorityLabels[t.Priority])
	}
	b.WriteString("\n\n" + menuInstructionMessage)
	return b.String()
}

// ticketDescription builds the structured ticket description from the session.
func ticketDescription(name, phone, problem string) string {
	if name == "" {
		name = "Não identificado"
	}
	return fmt.Sprintf("Solicitante: %s\nTelefone: %s\n\nProblema relatado:\n%s", name, phone, problem)
}

package flow

import (
	"strconv"
	"strings"

	"github.com/desklink/intakebot/internal/models"
)

// InputKind tags the interpretation of one inbound message for the session's
// current step. Every step parses into exactly one kind, which keeps the
// invalid-input handling exhaustive and testable.
type InputKind int

const (
	// InputUnrecognized is any input the current step cannot interpret.
	InputUnrecognized InputKind = iota
	// InputProblemText is an accepted problem description.
	InputProblemText
	// InputProblemTooShort is a problem description below the minimum length.
	InputProblemTooShort
	// InputPriorityChoice is a valid 1-3 priority selection.
	InputPriorityChoice
	// InputMenuNewTicket is the menu selection to open a ticket.
	InputMenuNewTicket
	// InputMenuMyTickets is the menu selection to list recent tickets.
	InputMenuMyTickets
)

// Input is the parsed form of one inbound message.
type Input struct {
	Kind     InputKind
	Problem  string          // set for InputProblemText
	Priority models.Priority // set for InputPriorityChoice
}

// ParseInput interprets trimmed message text for the given session step.
// The caller guarantees text is non-empty after trimming; empty input never
// reaches the state machine.
func ParseInput(step models.SessionStep, text string) Input {
	trimmed := strings.TrimSpace(text)
	switch step {
	case models.StepMenu:
		switch trimmed {
		case "1":
			return Input{Kind: InputMenuNewTicket}
		case "2":
			return Input{Kind: InputMenuMyTickets}
		default:
			return Input{Kind: InputUnrecognized}
		}
	case models.StepAwaitingProblem:
		if len([]rune(trimmed)) < models.MinProblemTextLength {
			return Input{Kind: InputProblemTooShort}
		}
		return Input{Kind: InputProblemText, Problem: trimmed}
	case models.StepAwaitingPriority:
		choice, err := strconv.Atoi(trimmed)
		if err != nil {
			return Input{Kind: InputUnrecognized}
		}
		if p, ok := models.PriorityFromChoice(choice); ok {
			return Input{Kind: InputPriorityChoice, Priority: p}
		}
		return Input{Kind: InputUnrecognized}
	default:
		return Input{Kind: InputUnrecognized}
	}
}

package flow

import (
	"strings"
	"testing"

	"github.com/desklink/intakebot/internal/models"
)

func TestParseInputMenu(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected InputKind
	}{
		{"open ticket", "1", InputMenuNewTicket},
		{"list tickets", "2", InputMenuMyTickets},
		{"padded choice", "  1  ", InputMenuNewTicket},
		{"out of range", "3", InputUnrecognized},
		{"free text", "quero abrir um chamado", InputUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseInput(models.StepMenu, tt.text)
			if got.Kind != tt.expected {
				t.Errorf("ParseInput(menu, %q).Kind = %v, expected %v", tt.text, got.Kind, tt.expected)
			}
		})
	}
}

func TestParseInputProblem(t *testing.T) {
	got := ParseInput(models.StepAwaitingProblem, "  minha impressora parou de funcionar  ")
	if got.Kind != InputProblemText {
		t.Fatalf("expected InputProblemText, got %v", got.Kind)
	}
	if got.Problem != "minha impressora parou de funcionar" {
		t.Errorf("problem text not trimmed: %q", got.Problem)
	}

	got = ParseInput(models.StepAwaitingProblem, "ok")
	if got.Kind != InputProblemTooShort {
		t.Errorf("two-character input should be too short, got %v", got.Kind)
	}

	// Length is counted in runes, not bytes.
	got = ParseInput(models.StepAwaitingProblem, "çã")
	if got.Kind != InputProblemTooShort {
		t.Errorf("two-rune input should be too short, got %v", got.Kind)
	}

	minimal := strings.Repeat("a", models.MinProblemTextLength)
	got = ParseInput(models.StepAwaitingProblem, minimal)
	if got.Kind != InputProblemText {
		t.Errorf("input at minimum length should be accepted, got %v", got.Kind)
	}
}

func TestParseInputPriority(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected InputKind
		priority models.Priority
	}{
		{"alta", "1", InputPriorityChoice, models.PriorityAlta},
		{"media", "2", InputPriorityChoice, models.PriorityMedia},
		{"baixa", "3", InputPriorityChoice, models.PriorityBaixa},
		{"padded", " 2 ", InputPriorityChoice, models.PriorityMedia},
		{"zero", "0", InputUnrecognized, ""},
		{"out of range", "4", InputUnrecognized, ""},
		{"not a number", "alta", InputUnrecognized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseInput(models.StepAwaitingPriority, tt.text)
			if got.Kind != tt.expected {
				t.Errorf("ParseInput(priority, %q).Kind = %v, expected %v", tt.text, got.Kind, tt.expected)
			}
			if got.Priority != tt.priority {
				t.Errorf("ParseInput(priority, %q).Priority = %q, expected %q", tt.text, got.Priority, tt.priority)
			}
		})
	}
}

func TestParseInputUnknownStep(t *testing.T) {
	got := ParseInput(models.SessionStep("bogus"), "1")
	if got.Kind != InputUnrecognized {
		t.Errorf("unknown step should parse as unrecognized, got %v", got.Kind)
	}
}

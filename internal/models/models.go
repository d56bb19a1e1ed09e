// Package models defines the core data structures for the intake bot.
//
// It includes types for inbound webhook events, conversation sessions, and the
// helpdesk entities (profiles, units, tickets) shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// EventType discriminates inbound webhook events from the messaging provider.
type EventType string

const (
	// EventTypeMessage is the only event type the intake flow processes.
	EventTypeMessage EventType = "message"
	// EventTypeReceipt covers delivery/read receipts, acknowledged but ignored.
	EventTypeReceipt EventType = "receipt"
	// EventTypePresence covers presence updates, acknowledged but ignored.
	EventTypePresence EventType = "presence"
)

// InboundEvent is the provider-agnostic shape of one inbound webhook delivery.
type InboundEvent struct {
	Type   EventType `json:"event"`
	From   string    `json:"from"`
	Body   string    `json:"text"`
	FromMe bool      `json:"fromMe"`
	Time   int64     `json:"time,omitempty"`
}

// Response represents an incoming message from a sender on a live channel.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// Validation error variables for better error handling and testability.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrNoDigits       = errors.New("no digits found in recipient")
	ErrPhoneTooShort  = errors.New("phone number is too short")
)

// SessionStep identifies where a conversation currently is.
type SessionStep string

const (
	// StepMenu is the optional menu shown to senders with a known profile.
	StepMenu SessionStep = "menu"
	// StepAwaitingProblem waits for the free-text problem description.
	StepAwaitingProblem SessionStep = "awaiting_problem"
	// StepAwaitingPriority waits for the numeric priority selection.
	StepAwaitingPriority SessionStep = "awaiting_priority"
)

// Session is the ephemeral conversation state for one sender, keyed by the
// normalized phone number. It exists only between the first inbound message
// and the ticket creation attempt (or expiry).
type Session struct {
	Step        SessionStep `json:"step"`
	Phone       string      `json:"phone"` // original sender identifier
	DisplayName string      `json:"display_name,omitempty"`
	KnownUserID string      `json:"known_user_id,omitempty"`
	KnownUnitID string      `json:"known_unit_id,omitempty"`
	ProblemText string      `json:"problem_text,omitempty"`
	Priority    Priority    `json:"priority,omitempty"`
	IsNewUser   bool        `json:"is_new_user"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Priority is the ticket urgency selected during intake.
type Priority string

const (
	PriorityAlta  Priority = "alta"
	PriorityMedia Priority = "media"
	PriorityBaixa Priority = "baixa"
)

// PriorityFromChoice maps the numeric menu selection (1-3) to a priority.
func PriorityFromChoice(choice int) (Priority, bool) {
	switch choice {
	case 1:
		return PriorityAlta, true
	case 2:
		return PriorityMedia, true
	case 3:
		return PriorityBaixa, true
	default:
		return "", false
	}
}

// IsValidPriority checks if the given priority is supported.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityAlta, PriorityMedia, PriorityBaixa:
		return true
	default:
		return false
	}
}

// Constants for ticket materialization.
const (
	// MaxTicketTitleLength is the truncation limit for ticket titles.
	MaxTicketTitleLength = 100
	// MinProblemTextLength is the minimum trimmed length accepted as a problem description.
	MinProblemTextLength = 3
	// FallbackCategory is the catch-all ticket category used when no classifier is configured.
	FallbackCategory = "outros"
	// RecentTicketLimit bounds the menu's recent-ticket listing.
	RecentTicketLimit = 3
)

// TicketStatus enumerates ticket lifecycle states. Intake only ever creates
// open tickets; the remaining states exist for the listing queries.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Profile is a helpdesk user identified by phone number.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"` // normalized digits
	UnitID    string    `json:"unit_id,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Unit is a business unit tickets are attributed to.
type Unit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ticket is a support request materialized from a completed session.
type Ticket struct {
	ID          string       `json:"id"`
	Number      string       `json:"number"` // human-readable, e.g. HD-000042
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Priority    Priority     `json:"priority"`
	RequesterID string       `json:"requester_id"`
	UnitID      string       `json:"unit_id"`
	Status      TicketStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TruncateTitle shortens a problem text to the ticket title limit, counting
// runes so multi-byte input is never cut mid-character.
func TruncateTitle(problem string) string {
	runes := []rune(problem)
	if len(runes) <= MaxTicketTitleLength {
		return problem
	}
	return string(runes[:MaxTicketTitleLength])
}

// SynthesizeEmail derives the placeholder profile email from a normalized phone.
func SynthesizeEmail(normalizedPhone string) string {
	return normalizedPhone + "@whatsapp.interno"
}

// CanonicalPhone reduces a phone-like identifier to its full digit string,
// dropping punctuation and any provider suffix (the part after '@'). This is
// the outbound delivery address; NormalizePhone derives the session key.
func CanonicalPhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		if r == '@' {
			break
		}
	}
	return b.String()
}

// NormalizePhone reduces any phone-like identifier (E.164, JID such as
// "5511999999999@s.whatsapp.net", punctuated local formats) to the session
// key: the last 10 digits of its digit-only form. Identifiers with fewer
// digits normalize to all of them.
func NormalizePhone(raw string) string {
	digits := CanonicalPhone(raw)
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}

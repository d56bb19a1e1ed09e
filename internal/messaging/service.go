// Package messaging provides pluggable message delivery channels for the
// intake bot.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/desklink/intakebot/internal/models"
)

// Service defines a pluggable message delivery abstraction. It supports
// sending messages and provides a channel of incoming sender responses.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Returns the canonicalized recipient and an error if
	// validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming sender messages.
	Responses() <-chan models.Response
}

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// canonicalizePhone validates and canonicalizes a phone number by removing
// all non-numeric characters. Shared by the channel implementations.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: %q", models.ErrNoDigits, recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q has fewer than 6 digits", models.ErrPhoneTooShort, canonical)
	}
	if canonical != recipient {
		slog.Debug("Canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

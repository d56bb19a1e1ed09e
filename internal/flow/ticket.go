package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/desklink/intakebot/internal/metrics"
	"github.com/desklink/intakebot/internal/models"
)

// materializeTicket turns a completed session into a ticket record and tells
// the sender what happened. Every failure path after this point produces a
// chat reply; the caller tears the session down regardless of outcome.
func (b *Bot) materializeTicket(ctx context.Context, key, replyTo string, sess *models.Session) {
	if sess.ProblemText == "" {
		slog.Error("Bot session completed without problem text", "phone", key)
		metrics.TicketFailures.Inc()
		b.send(ctx, replyTo, ticketFailureMessage)
		return
	}

	requesterID := sess.KnownUserID
	unitID := sess.KnownUnitID
	displayName := sess.DisplayName

	if requesterID == "" {
		unit, err := b.resolveUnit(ctx, unitID)
		if err != nil {
			slog.Error("Bot unit resolution failed", "error", err, "phone", key, "step", sess.Step)
			metrics.TicketFailures.Inc()
			b.send(ctx, replyTo, ticketFailureMessage)
			return
		}
		if unit == nil {
			// Policy says an unregistered sender without a unit cannot open
			// tickets; this is a rejection, not an internal failure.
			slog.Warn("Bot rejecting ticket for unregistered sender", "phone", key, "unit_fallback", b.cfg.UnitFallback)
			metrics.TicketFailures.Inc()
			b.send(ctx, replyTo, notRegisteredMessage)
			return
		}
		unitID = unit.ID

		if displayName == "" {
			displayName = "Usuário WhatsApp " + key
		}
		profile, err := b.store.CreateProfile(ctx, models.Profile{
			Name:   displayName,
			Email:  models.SynthesizeEmail(key),
			Phone:  key,
			UnitID: unitID,
			Role:   "user",
			Status: "active",
		})
		if err != nil {
			slog.Error("Bot placeholder profile creation failed", "error", err, "phone", key, "step", sess.Step)
			metrics.TicketFailures.Inc()
			b.send(ctx, replyTo, ticketFailureMessage)
			return
		}
		requesterID = profile.ID
		slog.Info("Bot created placeholder profile", "phone", key, "profile_id", profile.ID, "unit_id", unitID)
	}

	ticket, err := b.store.CreateTicket(ctx, models.Ticket{
		Title:       models.TruncateTitle(sess.ProblemText),
		Description: ticketDescription(displayName, models.CanonicalPhone(sess.Phone), sess.ProblemText),
		Category:    b.categorize(ctx, sess.ProblemText),
		Priority:    sess.Priority,
		RequesterID: requesterID,
		UnitID:      unitID,
		Status:      models.TicketStatusOpen,
	})
	if err != nil {
		slog.Error("Bot ticket creation failed", "error", err, "phone", key, "requester", requesterID)
		metrics.TicketFailures.Inc()
		b.send(ctx, replyTo, ticketFailureMessage)
		return
	}

	metrics.TicketsCreated.Inc()
	slog.Info("Bot ticket created", "phone", key, "number", ticket.Number, "priority", ticket.Priority, "requester", requesterID)
	b.send(ctx, replyTo, confirmationMessage(ticket, sess.ProblemText))
}

// resolveUnit finds the unit to attribute an unregistered sender's ticket to.
// Returns (nil, nil) when the configured policy yields no unit.
func (b *Bot) resolveUnit(ctx context.Context, knownUnitID string) (*models.Unit, error) {
	if knownUnitID != "" {
		unit, err := b.store.GetUnitByID(ctx, knownUnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up unit %s: %w", knownUnitID, err)
		}
		if unit != nil {
			return unit, nil
		}
		slog.Warn("Bot known unit no longer exists, applying fallback policy", "unit_id", knownUnitID)
	}
	if b.cfg.UnitFallback != UnitFallbackAny {
		return nil, nil
	}
	unit, err := b.store.GetAnyUnit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fallback unit: %w", err)
	}
	return unit, nil
}

// categorize asks the classifier for a category, falling back to the
// catch-all on any failure. Never blocks ticket creation.
func (b *Bot) categorize(ctx context.Context, problem string) string {
	if b.classifier == nil {
		return models.FallbackCategory
	}
	category, err := b.classifier.SuggestCategory(ctx, problem)
	if err != nil || category == "" {
		slog.Warn("Bot category classification failed, using fallback", "error", err)
		return models.FallbackCategory
	}
	return category
}

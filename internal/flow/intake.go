// Package flow implements the conversational ticket-intake state machine.
//
// One inbound message produces exactly one state transition: a new sender is
// greeted and a session created, a sender mid-conversation advances (or
// self-loops on invalid input), and a completed conversation materializes a
// ticket. Sessions live in a session.Store keyed by normalized phone number;
// transitions for the same sender are serialized by a per-key lock so
// duplicate webhook deliveries cannot race a read-modify-write cycle or
// create duplicate tickets.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/desklink/intakebot/internal/metrics"
	"github.com/desklink/intakebot/internal/models"
	"github.com/desklink/intakebot/internal/session"
	"github.com/desklink/intakebot/internal/store"
)

// Sender delivers outbound text messages to a phone number. Delivery is
// fire-and-forget from the state machine's perspective: failures are logged,
// not retried.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Classifier suggests a ticket category from the problem text. Optional; the
// bot falls back to the catch-all category on any error.
type Classifier interface {
	SuggestCategory(ctx context.Context, problem string) (string, error)
}

// UnitFallbackPolicy controls what happens when an unregistered sender's
// business unit cannot be determined.
type UnitFallbackPolicy string

const (
	// UnitFallbackReject refuses ticket creation and asks the sender to be
	// registered first. This is the default.
	UnitFallbackReject UnitFallbackPolicy = "reject"
	// UnitFallbackAny attributes the ticket to an arbitrary existing unit.
	// Explicit opt-in; tickets may land on an unrelated unit.
	UnitFallbackAny UnitFallbackPolicy = "any"
)

// Config holds the intake bot's behavioral switches.
type Config struct {
	// MenuForKnownUsers shows recognized senders a menu before the problem
	// prompt instead of jumping straight into ticket intake.
	MenuForKnownUsers bool
	// UnitFallback is applied when an unregistered sender has no resolvable unit.
	UnitFallback UnitFallbackPolicy
}

// Option defines a configuration option for the Bot.
type Option func(*Bot)

// WithClassifier attaches an optional ticket category classifier.
func WithClassifier(c Classifier) Option {
	return func(b *Bot) {
		b.classifier = c
	}
}

// Bot is the conversation tracker and ticket materializer.
type Bot struct {
	sessions   session.Store
	locks      *session.KeyedLock
	store      store.Store
	sender     Sender
	classifier Classifier
	cfg        Config
}

// NewBot creates a Bot over the given collaborators.
func NewBot(sessions session.Store, st store.Store, sender Sender, cfg Config, opts ...Option) *Bot {
	if cfg.UnitFallback == "" {
		cfg.UnitFallback = UnitFallbackReject
	}
	b := &Bot{
		sessions: sessions,
		locks:    session.NewKeyedLock(),
		store:    st,
		sender:   sender,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(b)
	}
	slog.Debug("Bot created", "menu_for_known_users", cfg.MenuForKnownUsers, "unit_fallback", cfg.UnitFallback, "classifier_set", b.classifier != nil)
	return b
}

// HandleEvent is the single entry point for one inbound webhook delivery.
// It applies at most one state transition and sends at most one outbound
// message. Collaborator failures never propagate; they are logged and
// converted into a best-effort chat reply.
func (b *Bot) HandleEvent(ctx context.Context, evt models.InboundEvent) models.Ack {
	ack := b.handleEvent(ctx, evt)
	metrics.WebhookEvents.WithLabelValues(string(ack.Status)).Inc()
	return ack
}

func (b *Bot) handleEvent(ctx context.Context, evt models.InboundEvent) models.Ack {
	if evt.Type != models.EventTypeMessage {
		slog.Debug("Bot ignoring event type", "type", evt.Type)
		return models.Ignored("unsupported event type")
	}
	if evt.FromMe {
		slog.Debug("Bot ignoring self-sent message", "from", evt.From)
		return models.Ignored("self-sent message")
	}
	text := strings.TrimSpace(evt.Body)
	if text == "" {
		slog.Debug("Bot ignoring empty message body", "from", evt.From)
		return models.Ignored("empty message body")
	}

	key := models.NormalizePhone(evt.From)
	if key == "" {
		slog.Warn("Bot ignoring sender with no phone digits", "from", evt.From)
		return models.Ignored("sender has no phone digits")
	}

	// One logical transaction per phone key: concurrent deliveries for the
	// same sender are serialized here.
	b.locks.Lock(key)
	defer b.locks.Unlock(key)

	b.handleMessage(ctx, key, evt.From, text)
	return models.Processed()
}

// handleMessage resolves the sender's session and applies one transition.
func (b *Bot) handleMessage(ctx context.Context, key, from, text string) {
	replyTo := models.CanonicalPhone(from)

	sess, err := b.sessions.Get(ctx, key)
	if err != nil {
		slog.Error("Bot failed to load session", "error", err, "phone", key)
		b.send(ctx, replyTo, genericErrorMessage)
		return
	}

	if sess == nil {
		b.startSession(ctx, key, from, replyTo)
		return
	}

	input := ParseInput(sess.Step, text)
	switch sess.Step {
	case models.StepMenu:
		b.handleMenu(ctx, key, replyTo, sess, input)
	case models.StepAwaitingProblem:
		b.handleProblem(ctx, key, replyTo, sess, input)
	case models.StepAwaitingPriority:
		b.handlePriority(ctx, key, replyTo, sess, input)
	default:
		// Unknown step in a stored session; discard it so the next message
		// starts fresh.
		slog.Error("Bot found session with unknown step, discarding", "phone", key, "step", sess.Step)
		if err := b.sessions.Delete(ctx, key); err != nil {
			slog.Error("Bot failed to delete corrupt session", "error", err, "phone", key)
		}
		b.send(ctx, replyTo, genericErrorMessage)
	}
}

// startSession creates a session for a previously-unseen phone number and
// sends the greeting. Known senders get the menu when it is enabled.
func (b *Bot) startSession(ctx context.Context, key, from, replyTo string) {
	profile, err := b.store.GetProfileByPhone(ctx, key)
	if err != nil {
		// Lookup failure at conversation start: treat the sender as unknown
		// rather than refusing the conversation.
		slog.Error("Bot profile lookup failed, treating sender as unknown", "error", err, "phone", key)
		profile = nil
	}

	now := time.Now()
	sess := &models.Session{
		Phone:     from,
		IsNewUser: profile == nil,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var reply string
	if profile != nil {
		sess.DisplayName = profile.Name
		sess.KnownUserID = profile.ID
		sess.KnownUnitID = profile.UnitID
		if b.cfg.MenuForKnownUsers {
			sess.Step = models.StepMenu
			reply = menuMessage(profile.Name)
		} else {
			sess.Step = models.StepAwaitingProblem
			reply = greetingMessage(profile.Name)
		}
	} else {
		sess.Step = models.StepAwaitingProblem
		reply = greetingMessage("")
	}

	if err := b.sessions.Put(ctx, key, sess); err != nil {
		slog.Error("Bot failed to store new session", "error", err, "phone", key)
		b.send(ctx, replyTo, genericErrorMessage)
		return
	}
	metrics.ActiveSessionSteps.WithLabelValues(string(sess.Step)).Inc()
	slog.Info("Bot started session", "phone", key, "step", sess.Step, "known_user", !sess.IsNewUser)
	b.send(ctx, replyTo, reply)
}

// handleMenu applies one transition from the known-user menu.
func (b *Bot) handleMenu(ctx context.Context, key, replyTo string, sess *models.Session, input Input) {
	switch input.Kind {
	case InputMenuNewTicket:
		sess.Step = models.StepAwaitingProblem
		sess.UpdatedAt = time.Now()
		if err := b.sessions.Put(ctx, key, sess); err != nil {
			slog.Error("Bot failed to advance session to problem prompt", "error", err, "phone", key)
			b.send(ctx, replyTo, genericErrorMessage)
			return
		}
		metrics.ActiveSessionSteps.WithLabelValues(string(sess.Step)).Inc()
		b.send(ctx, replyTo, problemPromptMessage)
	case InputMenuMyTickets:
		tickets, err := b.store.ListRecentTicketsByRequester(ctx, sess.KnownUserID, models.RecentTicketLimit)
		if err != nil {
			slog.Error("Bot failed to list recent tickets", "error", err, "phone", key, "requester", sess.KnownUserID)
			b.send(ctx, replyTo, genericErrorMessage)
			return
		}
		// Stays in menu; refresh the session TTL.
		sess.UpdatedAt = time.Now()
		if err := b.sessions.Put(ctx, key, sess); err != nil {
			slog.Error("Bot failed to refresh menu session", "error", err, "phone", key)
		}
		b.send(ctx, replyTo, recentTicketsMessage(tickets))
	default:
		b.send(ctx, replyTo, menuInstructionMessage)
	}
}

// handleProblem applies one transition from awaiting_problem.
func (b *Bot) handleProblem(ctx context.Context, key, replyTo string, sess *models.Session, input Input) {
	switch input.Kind {
	case InputProblemTooShort:
		// Step does not advance on invalid input.
		b.send(ctx, replyTo, problemTooShortMessage)
	case InputProblemText:
		sess.ProblemText = input.Problem
		sess.Step = models.StepAwaitingPriority
		sess.UpdatedAt = time.Now()
		if err := b.sessions.Put(ctx, key, sess); err != nil {
			slog.Error("Bot failed to advance session to priority prompt", "error", err, "phone", key)
			b.send(ctx, replyTo, genericErrorMessage)
			return
		}
		metrics.ActiveSessionSteps.WithLabelValues(string(sess.Step)).Inc()
		b.send(ctx, replyTo, priorityMenuMessage)
	default:
		b.send(ctx, replyTo, problemTooShortMessage)
	}
}

// handlePriority applies one transition from awaiting_priority. A valid
// selection triggers ticket creation; the session is deleted on any outcome
// so the next message starts a fresh conversation.
func (b *Bot) handlePriority(ctx context.Context, key, replyTo string, sess *models.Session, input Input) {
	if input.Kind != InputPriorityChoice {
		b.send(ctx, replyTo, priorityInvalidMessage)
		return
	}
	sess.Priority = input.Priority

	b.materializeTicket(ctx, key, replyTo, sess)

	// No automatic retry of the flow: success or failure, the conversation ends.
	if err := b.sessions.Delete(ctx, key); err != nil {
		slog.Error("Bot failed to delete completed session", "error", err, "phone", key)
	}
}

// send delivers one outbound message, logging failures instead of surfacing them.
func (b *Bot) send(ctx context.Context, to, body string) {
	if err := b.sender.SendMessage(ctx, to, body); err != nil {
		slog.Error("Bot failed to send message", "error", err, "to", to)
		metrics.OutboundMessages.WithLabelValues("failed").Inc()
		return
	}
	metrics.OutboundMessages.WithLabelValues("sent").Inc()
}

const genericErrorMessage = "⚠️ Ocorreu um erro ao processar sua mensagem. Por favor, tente novamente."

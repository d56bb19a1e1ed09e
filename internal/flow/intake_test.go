package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desklink/intakebot/internal/models"
	"github.com/desklink/intakebot/internal/session"
	"github.com/desklink/intakebot/internal/store"
)

// mockSender records outbound messages for assertions.
type mockSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	failSend bool
}

type sentMessage struct {
	to   string
	body string
}

func (m *mockSender) SendMessage(ctx context.Context, to string, body string) error {
	if m.failSend {
		return errors.New("simulated send failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to: to, body: body})
	return nil
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockSender) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	sent := m.messages()
	if len(sent) == 0 {
		t.Fatal("expected at least one outbound message, got none")
	}
	return sent[len(sent)-1]
}

// mockClassifier returns a fixed category or error.
type mockClassifier struct {
	category string
	err      error
}

func (m *mockClassifier) SuggestCategory(ctx context.Context, problem string) (string, error) {
	return m.category, m.err
}

type testEnv struct {
	bot      *Bot
	store    *store.InMemoryStore
	sender   *mockSender
	sessions session.Store
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	st := store.NewInMemoryStore()
	sender := &mockSender{}
	sessions := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { sessions.Close() })
	return &testEnv{
		bot:      NewBot(sessions, st, sender, cfg, opts...),
		store:    st,
		sender:   sender,
		sessions: sessions,
	}
}

func (e *testEnv) message(ctx context.Context, from, body string) models.Ack {
	return e.bot.HandleEvent(ctx, models.InboundEvent{
		Type: models.EventTypeMessage,
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	})
}

func (e *testEnv) session(t *testing.T, from string) *models.Session {
	t.Helper()
	sess, err := e.sessions.Get(context.Background(), models.NormalizePhone(from))
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	return sess
}

const testJID = "5511999999999@s.whatsapp.net"

func TestUnknownSenderGetsGreeting(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ack := env.message(ctx, testJID, "oi")
	if ack.Status != models.AckStatusProcessed {
		t.Fatalf("expected processed ack, got %+v", ack)
	}

	msg := env.sender.lastMessage(t)
	if msg.to != "5511999999999" {
		t.Errorf("reply target = %q, expected full digit string", msg.to)
	}
	if !strings.Contains(msg.body, "descreva o problema") {
		t.Errorf("expected greeting with problem prompt, got %q", msg.body)
	}

	sess := env.session(t, testJID)
	if sess == nil {
		t.Fatal("expected a session to be created")
	}
	if sess.Step != models.StepAwaitingProblem {
		t.Errorf("session step = %q, expected awaiting_problem", sess.Step)
	}
	if !sess.IsNewUser {
		t.Error("session should mark the sender as new")
	}
}

func TestKnownSenderGetsMenu(t *testing.T) {
	env := newTestEnv(t, Config{MenuForKnownUsers: true})
	ctx := context.Background()

	unit := env.store.AddUnit(models.Unit{Name: "Financeiro"})
	profile, err := env.store.CreateProfile(ctx, models.Profile{
		Name:   "Maria Silva",
		Phone:  models.NormalizePhone(testJID),
		UnitID: unit.ID,
	})
	if err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}

	env.message(ctx, testJID, "oi")

	msg := env.sender.lastMessage(t)
	if !strings.Contains(msg.body, "Maria Silva") {
		t.Errorf("menu should greet by name, got %q", msg.body)
	}
	if !strings.Contains(msg.body, "1 - Abrir um chamado") {
		t.Errorf("expected menu options, got %q", msg.body)
	}

	sess := env.session(t, testJID)
	if sess == nil || sess.Step != models.StepMenu {
		t.Fatalf("expected session at menu step, got %+v", sess)
	}
	if sess.KnownUserID != profile.ID {
		t.Errorf("session KnownUserID = %q, expected %q", sess.KnownUserID, profile.ID)
	}

	// "1" advances to the problem prompt.
	env.message(ctx, testJID, "1")
	if got := env.sender.lastMessage(t).body; got != problemPromptMessage {
		t.Errorf("expected problem prompt after menu choice 1, got %q", got)
	}
	sess = env.session(t, testJID)
	if sess.Step != models.StepAwaitingProblem {
		t.Errorf("session step = %q, expected awaiting_problem", sess.Step)
	}
}

func TestKnownSenderSkipsMenuWhenDisabled(t *testing.T) {
	env := newTestEnv(t, Config{MenuForKnownUsers: false})
	ctx := context.Background()

	if _, err := env.store.CreateProfile(ctx, models.Profile{
		Name:  "Maria Silva",
		Phone: models.NormalizePhone(testJID),
	}); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}

	env.message(ctx, testJID, "oi")

	msg := env.sender.lastMessage(t)
	if !strings.Contains(msg.body, "Maria Silva") || !strings.Contains(msg.body, "descreva o problema") {
		t.Errorf("expected named greeting with problem prompt, got %q", msg.body)
	}
	if sess := env.session(t, testJID); sess == nil || sess.Step != models.StepAwaitingProblem {
		t.Fatalf("expected session at awaiting_problem, got %+v", sess)
	}
}

func TestMenuListsRecentTickets(t *testing.T) {
	env := newTestEnv(t, Config{MenuForKnownUsers: true})
	ctx := context.Background()

	profile, _ := env.store.CreateProfile(ctx, models.Profile{
		Name:  "Maria Silva",
		Phone: models.NormalizePhone(testJID),
	})
	for _, title := range []string{"primeiro", "segundo", "terceiro", "quarto"} {
		if _, err := env.store.CreateTicket(ctx, models.Ticket{
			Title:       title,
			Priority:    models.PriorityBaixa,
			RequesterID: profile.ID,
			Status:      models.TicketStatusOpen,
		}); err != nil {
			t.Fatalf("failed to seed ticket: %v", err)
		}
	}

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "2")

	msg := env.sender.lastMessage(t)
	if !strings.Contains(msg.body, "Seus últimos chamados") {
		t.Fatalf("expected recent ticket listing, got %q", msg.body)
	}
	// Limited to the most recent entries, newest first.
	if strings.Contains(msg.body, "primeiro") {
		t.Errorf("oldest ticket should fall outside the listing limit: %q", msg.body)
	}
	if !strings.Contains(msg.body, "quarto") || !strings.Contains(msg.body, "segundo") {
		t.Errorf("expected the three newest tickets, got %q", msg.body)
	}

	// Listing does not end the conversation.
	if sess := env.session(t, testJID); sess == nil || sess.Step != models.StepMenu {
		t.Fatalf("expected session to stay at menu, got %+v", sess)
	}
}

func TestMenuInvalidInputSelfLoop(t *testing.T) {
	env := newTestEnv(t, Config{MenuForKnownUsers: true})
	ctx := context.Background()

	env.store.CreateProfile(ctx, models.Profile{Name: "Maria", Phone: models.NormalizePhone(testJID)})
	env.message(ctx, testJID, "oi")

	env.message(ctx, testJID, "quero ajuda")
	if got := env.sender.lastMessage(t).body; got != menuInstructionMessage {
		t.Errorf("expected menu instruction, got %q", got)
	}
	if sess := env.session(t, testJID); sess == nil || sess.Step != models.StepMenu {
		t.Fatalf("invalid input must not advance the step, got %+v", sess)
	}
}

func TestProblemTooShortSelfLoop(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "ha")

	if got := env.sender.lastMessage(t).body; got != problemTooShortMessage {
		t.Errorf("expected too-short reply, got %q", got)
	}
	sess := env.session(t, testJID)
	if sess == nil || sess.Step != models.StepAwaitingProblem {
		t.Fatalf("invalid input must not advance the step, got %+v", sess)
	}
	if sess.ProblemText != "" {
		t.Errorf("rejected input must not be stored, got %q", sess.ProblemText)
	}
}

func TestInvalidPrioritySelfLoop(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "minha impressora parou de funcionar")
	env.message(ctx, testJID, "urgente")

	if got := env.sender.lastMessage(t).body; got != priorityInvalidMessage {
		t.Errorf("expected invalid priority reply, got %q", got)
	}
	if sess := env.session(t, testJID); sess == nil || sess.Step != models.StepAwaitingPriority {
		t.Fatalf("invalid input must not advance the step, got %+v", sess)
	}
	if len(env.store.Tickets()) != 0 {
		t.Error("no ticket should exist before a valid priority")
	}
}

func TestFullIntakeForKnownSender(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	unit := env.store.AddUnit(models.Unit{Name: "Financeiro"})
	profile, _ := env.store.CreateProfile(ctx, models.Profile{
		Name:   "Maria Silva",
		Phone:  models.NormalizePhone(testJID),
		UnitID: unit.ID,
	})

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "minha impressora parou de funcionar")
	env.message(ctx, testJID, "2")

	tickets := env.store.Tickets()
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	tk := tickets[0]
	if tk.Title != "minha impressora parou de funcionar" {
		t.Errorf("ticket title = %q", tk.Title)
	}
	if tk.Priority != models.PriorityMedia {
		t.Errorf("ticket priority = %q, expected media", tk.Priority)
	}
	if tk.RequesterID != profile.ID {
		t.Errorf("ticket requester = %q, expected %q", tk.RequesterID, profile.ID)
	}
	if tk.UnitID != unit.ID {
		t.Errorf("ticket unit = %q, expected %q", tk.UnitID, unit.ID)
	}
	if tk.Status != models.TicketStatusOpen {
		t.Errorf("ticket status = %q, expected open", tk.Status)
	}
	if tk.Category != models.FallbackCategory {
		t.Errorf("ticket category = %q, expected fallback without classifier", tk.Category)
	}
	if !strings.Contains(tk.Description, "Maria Silva") || !strings.Contains(tk.Description, "Problema relatado") {
		t.Errorf("ticket description missing requester context: %q", tk.Description)
	}

	msg := env.sender.lastMessage(t)
	if !strings.Contains(msg.body, tk.Number) {
		t.Errorf("confirmation should carry the ticket number %q, got %q", tk.Number, msg.body)
	}

	// Conversation ends; the next message starts fresh.
	if sess := env.session(t, testJID); sess != nil {
		t.Fatalf("session should be deleted after ticket creation, got %+v", sess)
	}

	// No placeholder profile was created for a known sender.
	if got := len(env.store.Profiles()); got != 1 {
		t.Errorf("expected 1 profile, got %d", got)
	}
}

func TestDuplicatePriorityDeliveriesCreateOneTicket(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	unit := env.store.AddUnit(models.Unit{Name: "Financeiro"})
	env.store.CreateProfile(ctx, models.Profile{
		Name:   "Maria Silva",
		Phone:  models.NormalizePhone(testJID),
		UnitID: unit.ID,
	})

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "minha impressora parou de funcionar")

	// The same priority reply delivered twice concurrently. Per-sender
	// serialization means one delivery creates the ticket and the other
	// lands on a fresh conversation.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.message(ctx, testJID, "3")
		}()
	}
	wg.Wait()

	if got := len(env.store.Tickets()); got != 1 {
		t.Fatalf("expected exactly 1 ticket from duplicate deliveries, got %d", got)
	}
}

func TestUnregisteredSenderRejectedByDefault(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.store.AddUnit(models.Unit{Name: "Financeiro"})

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "meu computador não liga")
	env.message(ctx, testJID, "1")

	if got := env.sender.lastMessage(t).body; got != notRegisteredMessage {
		t.Errorf("expected registration rejection, got %q", got)
	}
	if len(env.store.Tickets()) != 0 {
		t.Error("no ticket should be created under the reject policy")
	}
	if len(env.store.Profiles()) != 0 {
		t.Error("no placeholder profile should be created under the reject policy")
	}
	if sess := env.session(t, testJID); sess != nil {
		t.Fatalf("session should be deleted after rejection, got %+v", sess)
	}
}

func TestUnregisteredSenderWithFallbackUnit(t *testing.T) {
	env := newTestEnv(t, Config{UnitFallback: UnitFallbackAny})
	ctx := context.Background()

	unit := env.store.AddUnit(models.Unit{Name: "Geral"})

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "meu computador não liga")
	env.message(ctx, testJID, "1")

	tickets := env.store.Tickets()
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	if tickets[0].UnitID != unit.ID {
		t.Errorf("ticket unit = %q, expected fallback unit %q", tickets[0].UnitID, unit.ID)
	}
	if tickets[0].Priority != models.PriorityAlta {
		t.Errorf("ticket priority = %q, expected alta", tickets[0].Priority)
	}

	profiles := env.store.Profiles()
	if len(profiles) != 1 {
		t.Fatalf("expected a placeholder profile, got %d", len(profiles))
	}
	key := models.NormalizePhone(testJID)
	p := profiles[0]
	if p.Name != "Usuário WhatsApp "+key {
		t.Errorf("placeholder name = %q", p.Name)
	}
	if p.Email != models.SynthesizeEmail(key) {
		t.Errorf("placeholder email = %q", p.Email)
	}
	if p.Phone != key {
		t.Errorf("placeholder phone = %q, expected %q", p.Phone, key)
	}
	if tickets[0].RequesterID != p.ID {
		t.Errorf("ticket requester = %q, expected placeholder %q", tickets[0].RequesterID, p.ID)
	}
}

func TestUnregisteredSenderWithoutAnyUnit(t *testing.T) {
	env := newTestEnv(t, Config{UnitFallback: UnitFallbackAny})
	ctx := context.Background()

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "meu computador não liga")
	env.message(ctx, testJID, "1")

	if got := env.sender.lastMessage(t).body; got != notRegisteredMessage {
		t.Errorf("expected rejection when no unit exists at all, got %q", got)
	}
	if len(env.store.Tickets()) != 0 {
		t.Error("no ticket should be created without a resolvable unit")
	}
}

func TestTicketCreationFailureEndsConversation(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.store.CreateProfile(ctx, models.Profile{Name: "Maria", Phone: models.NormalizePhone(testJID)})
	env.store.FailCreateTicket = true

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "meu computador não liga")
	env.message(ctx, testJID, "3")

	if got := env.sender.lastMessage(t).body; got != ticketFailureMessage {
		t.Errorf("expected ticket failure reply, got %q", got)
	}
	if sess := env.session(t, testJID); sess != nil {
		t.Fatalf("session should be deleted even when ticket creation fails, got %+v", sess)
	}
}

func TestTitleTruncatedOnLongProblem(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.store.CreateProfile(ctx, models.Profile{Name: "Maria", Phone: models.NormalizePhone(testJID)})

	long := strings.Repeat("x", models.MaxTicketTitleLength+40)
	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, long)
	env.message(ctx, testJID, "1")

	tickets := env.store.Tickets()
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	if got := len([]rune(tickets[0].Title)); got != models.MaxTicketTitleLength {
		t.Errorf("ticket title length = %d, expected %d", got, models.MaxTicketTitleLength)
	}
	// The description keeps the untruncated problem text.
	if !strings.Contains(tickets[0].Description, long) {
		t.Error("ticket description should carry the full problem text")
	}
}

func TestClassifierCategoryUsed(t *testing.T) {
	env := newTestEnv(t, Config{}, WithClassifier(&mockClassifier{category: "impressora"}))
	ctx := context.Background()

	env.store.CreateProfile(ctx, models.Profile{Name: "Maria", Phone: models.NormalizePhone(testJID)})

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "a impressora do financeiro travou")
	env.message(ctx, testJID, "2")

	tickets := env.store.Tickets()
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	if tickets[0].Category != "impressora" {
		t.Errorf("ticket category = %q, expected classifier suggestion", tickets[0].Category)
	}
}

func TestClassifierFailureFallsBack(t *testing.T) {
	env := newTestEnv(t, Config{}, WithClassifier(&mockClassifier{err: errors.New("model unavailable")}))
	ctx := context.Background()

	env.store.CreateProfile(ctx, models.Profile{Name: "Maria", Phone: models.NormalizePhone(testJID)})

	env.message(ctx, testJID, "oi")
	env.message(ctx, testJID, "a impressora do financeiro travou")
	env.message(ctx, testJID, "2")

	tickets := env.store.Tickets()
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	if tickets[0].Category != models.FallbackCategory {
		t.Errorf("ticket category = %q, expected fallback", tickets[0].Category)
	}
}

func TestIgnoredEvents(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		evt  models.InboundEvent
	}{
		{"receipt event", models.InboundEvent{Type: models.EventTypeReceipt, From: testJID, Body: "x"}},
		{"self-sent message", models.InboundEvent{Type: models.EventTypeMessage, From: testJID, Body: "oi", FromMe: true}},
		{"empty body", models.InboundEvent{Type: models.EventTypeMessage, From: testJID, Body: "   "}},
		{"no digits in sender", models.InboundEvent{Type: models.EventTypeMessage, From: "status@broadcast-x", Body: "oi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := env.bot.HandleEvent(ctx, tt.evt)
			if ack.Status != models.AckStatusIgnored {
				t.Errorf("expected ignored ack, got %+v", ack)
			}
		})
	}

	if sent := env.sender.messages(); len(sent) != 0 {
		t.Errorf("ignored events must not produce outbound messages, got %d", len(sent))
	}
}

func TestPhoneFormatsShareOneSession(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.store.CreateProfile(ctx, models.Profile{Name: "Maria", Phone: models.NormalizePhone(testJID)})

	// Start as a JID, continue as E.164, finish as a punctuated local number.
	env.message(ctx, testJID, "oi")
	env.message(ctx, "+5511999999999", "minha impressora parou de funcionar")
	env.message(ctx, "(11) 99999-9999", "1")

	if len(env.store.Tickets()) != 1 {
		t.Fatalf("expected the three formats to drive one conversation, got %d tickets", len(env.store.Tickets()))
	}
}

func TestSendFailureDoesNotBreakFlow(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.sender.failSend = true
	ack := env.message(ctx, testJID, "oi")
	if ack.Status != models.AckStatusProcessed {
		t.Fatalf("send failures must not fail the event, got %+v", ack)
	}
	// The session was still created; the conversation can continue.
	if sess := env.session(t, testJID); sess == nil {
		t.Fatal("session should exist despite the send failure")
	}
}

func TestCorruptSessionDiscarded(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	key := models.NormalizePhone(testJID)
	if err := env.sessions.Put(ctx, key, &models.Session{Step: models.SessionStep("bogus"), Phone: testJID}); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	env.message(ctx, testJID, "oi")

	if sess := env.session(t, testJID); sess != nil {
		t.Fatalf("corrupt session should be discarded, got %+v", sess)
	}
	if got := env.sender.lastMessage(t).body; got != genericErrorMessage {
		t.Errorf("expected generic error reply, got %q", got)
	}
}

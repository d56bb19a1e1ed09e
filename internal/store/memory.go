package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/desklink/intakebot/internal/models"
)

// InMemoryStore is a map-backed Store for tests and ephemeral runs.
type InMemoryStore struct {
	mu       sync.Mutex
	profiles map[string]models.Profile // keyed by ID
	units    []models.Unit
	tickets  []models.Ticket
	seq      int64

	// FailCreateTicket forces CreateTicket to fail, for error-path tests.
	FailCreateTicket bool
	// FailCreateProfile forces CreateProfile to fail, for error-path tests.
	FailCreateProfile bool
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]models.Profile)}
}

// AddUnit seeds a unit, returning it with a generated ID if none was set.
func (s *InMemoryStore) AddUnit(u models.Unit) models.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.units = append(s.units, u)
	return u
}

// GetProfileByPhone looks up a profile by its normalized phone field.
func (s *InMemoryStore) GetProfileByPhone(ctx context.Context, normalizedPhone string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.Phone == normalizedPhone {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

// CreateProfile inserts a profile and returns it with its generated ID.
func (s *InMemoryStore) CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateProfile {
		return nil, fmt.Errorf("simulated profile insert failure")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	s.profiles[p.ID] = p
	return &p, nil
}

// GetAnyUnit returns an arbitrary existing unit, or nil when none exist.
func (s *InMemoryStore) GetAnyUnit(ctx context.Context) (*models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.units) == 0 {
		return nil, nil
	}
	cp := s.units[0]
	return &cp, nil
}

// GetUnitByID returns the unit with the given ID, or nil when absent.
func (s *InMemoryStore) GetUnitByID(ctx context.Context, id string) (*models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		if u.ID == id {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

// CreateTicket inserts a ticket and returns it with its generated ID and number.
func (s *InMemoryStore) CreateTicket(ctx context.Context, t models.Ticket) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateTicket {
		return nil, fmt.Errorf("simulated ticket insert failure")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.seq++
	t.Number = fmt.Sprintf(TicketNumberFormat, s.seq)
	t.CreatedAt = time.Now()
	s.tickets = append(s.tickets, t)
	return &t, nil
}

// ListRecentTicketsByRequester returns the requester's most recent tickets, newest first.
func (s *InMemoryStore) ListRecentTicketsByRequester(ctx context.Context, requesterID string, limit int) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Ticket
	// tickets are appended in creation order; walk backwards for newest first
	for i := len(s.tickets) - 1; i >= 0 && len(out) < limit; i-- {
		if s.tickets[i].RequesterID == requesterID {
			out = append(out, s.tickets[i])
		}
	}
	return out, nil
}

// Tickets returns a copy of all stored tickets, for assertions.
func (s *InMemoryStore) Tickets() []models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Ticket, len(s.tickets))
	copy(out, s.tickets)
	return out
}

// Profiles returns a copy of all stored profiles, for assertions.
func (s *InMemoryStore) Profiles() []models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

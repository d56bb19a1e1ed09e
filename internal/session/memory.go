package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/desklink/intakebot/internal/models"
)

// Constants for the in-memory session store.
const (
	// DefaultTTL is the idle expiry applied when none is configured.
	DefaultTTL = 30 * time.Minute
	// janitorInterval is how often expired sessions are swept.
	janitorInterval = 1 * time.Minute
)

type memoryEntry struct {
	session   models.Session
	expiresAt time.Time // zero means never
}

// MemoryStore is an in-process Store with per-entry TTL expiry.
// A TTL of zero disables expiry, reproducing the unbounded behavior of a
// plain map for deployments that explicitly want it.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a MemoryStore with the given idle TTL and starts its
// expiry janitor.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor()
	}
	slog.Debug("MemoryStore created", "ttl", ttl)
	return s
}

// Get returns the session for the key, or nil if absent or expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (*models.Session, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		// Expired but not yet swept; treat as absent and clean up.
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		slog.Debug("MemoryStore expired session removed on read", "key", key)
		return nil, nil
	}
	cp := e.session
	return &cp, nil
}

// Put stores or replaces the session for the key, refreshing its TTL.
func (s *MemoryStore) Put(ctx context.Context, key string, sess *models.Session) error {
	var expires time.Time
	if s.ttl > 0 {
		expires = time.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[key] = memoryEntry{session: *sess, expiresAt: expires}
	s.mu.Unlock()
	slog.Debug("MemoryStore session stored", "key", key, "step", sess.Step)
	return nil
}

// Delete removes the session for the key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	slog.Debug("MemoryStore session deleted", "key", key)
	return nil
}

// Count returns the number of active sessions.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Snapshot returns a copy of all active sessions keyed by phone.
func (s *MemoryStore) Snapshot(ctx context.Context) (map[string]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Session, len(s.entries))
	now := time.Now()
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			continue
		}
		out[k] = e.session
	}
	return out, nil
}

// Close stops the expiry janitor.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// janitor periodically removes expired sessions.
func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep removes all entries past their expiry.
func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	removed := 0
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		slog.Info("MemoryStore swept expired sessions", "removed", removed)
	}
}

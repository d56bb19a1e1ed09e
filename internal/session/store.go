// Package session provides storage and serialization primitives for
// conversation sessions.
//
// The intake flow treats "read session, mutate, write session" as one logical
// transaction per normalized phone number; Store supplies the storage and
// KeyedLock supplies the per-key mutual exclusion.
package session

import (
	"context"
	"sync"

	"github.com/desklink/intakebot/internal/models"
)

// Store persists conversation sessions keyed by normalized phone number.
// Implementations may expire entries after their TTL; callers must treat a
// missing session as a brand-new conversation.
type Store interface {
	// Get returns the session for the key, or nil if none is active.
	Get(ctx context.Context, key string) (*models.Session, error)

	// Put stores or replaces the session for the key, refreshing its TTL.
	Put(ctx context.Context, key string, s *models.Session) error

	// Delete removes the session for the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Count returns the number of active sessions.
	Count(ctx context.Context) (int, error)

	// Snapshot returns a copy of all active sessions keyed by phone, for the
	// operational sessions endpoint.
	Snapshot(ctx context.Context) (map[string]models.Session, error)

	// Close releases backend resources.
	Close() error
}

// KeyedLock serializes work per key so concurrent webhook deliveries for the
// same sender cannot interleave a read-modify-write cycle. Locks are created
// on first use and retained; the key space is bounded by the set of phone
// numbers that ever contact the bot.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the key, creating it if needed.
func (kl *KeyedLock) Lock(key string) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	if !ok {
		m = &sync.Mutex{}
		kl.locks[key] = m
	}
	kl.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for the key. Unlocking a key that was never
// locked panics, same as sync.Mutex.
func (kl *KeyedLock) Unlock(key string) {
	kl.mu.Lock()
	m := kl.locks[key]
	kl.mu.Unlock()
	m.Unlock()
}

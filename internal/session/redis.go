package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desklink/intakebot/internal/models"
)

// keyPrefix namespaces session keys in a shared Redis instance.
const keyPrefix = "intake:session:"

// RedisStore is a Store backed by Redis, for deployments where the webhook
// runs as more than one process. Sessions are stored as JSON with the TTL
// applied via EXPIRE, so idle-session cleanup is delegated to Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis at addr and verifies connectivity.
// A ttl of zero stores sessions without expiry.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err, "addr", addr)
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	slog.Info("RedisStore connected", "addr", addr, "db", db, "ttl", ttl)
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Get returns the session for the key, or nil if none is active.
func (s *RedisStore) Get(ctx context.Context, key string) (*models.Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore Get failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to get session %s: %w", key, err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		slog.Error("RedisStore Get unmarshal failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to decode session %s: %w", key, err)
	}
	return &sess, nil
}

// Put stores or replaces the session for the key, refreshing its TTL.
func (s *RedisStore) Put(ctx context.Context, key string, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", key, err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		slog.Error("RedisStore Put failed", "error", err, "key", key)
		return fmt.Errorf("failed to store session %s: %w", key, err)
	}
	slog.Debug("RedisStore session stored", "key", key, "step", sess.Step)
	return nil
}

// Delete removes the session for the key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		slog.Error("RedisStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	slog.Debug("RedisStore session deleted", "key", key)
	return nil
}

// Count returns the number of active sessions.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Snapshot returns a copy of all active sessions keyed by phone.
func (s *RedisStore) Snapshot(ctx context.Context) (map[string]models.Session, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Session, len(keys))
	for _, k := range keys {
		data, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and read
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session %s: %w", k, err)
		}
		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			slog.Warn("RedisStore skipping undecodable session", "error", err, "key", k)
			continue
		}
		out[k[len(keyPrefix):]] = sess
	}
	return out, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// scanKeys iterates the session namespace with SCAN to avoid blocking Redis.
func (s *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Error("RedisStore scan failed", "error", err)
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return keys, nil
}

package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultTTLHours is the default TTL for cache entries (7 days).
const defaultTTLHours = 7 * 24

// RedisStore provides a Redis-backed implementation of the Store interface.
// It uses JSON serialization for entry storage and supports automatic
// TTL-based cleanup. This implementation survives process restarts and may be
// shared by multiple processes (last-writer-wins, no cross-process locking).
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for cache entries.
// After this duration, entries will be automatically deleted.
// Default is 7 days. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
// Default is "waypoint".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed cache store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(7 * 24 * time.Hour),
//	    WithPrefix("myapp"),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTLHours * time.Hour,
		prefix: "waypoint",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Put upserts an entry and maintains the client index.
// Uses a pipeline to batch the SET and index update into a single round-trip.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.SessionID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := s.sessionKey(entry.SessionID)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, s.ttl)

	if entry.ClientID != "" {
		indexKey := s.clientIndexKey(entry.ClientID)
		pipe.SAdd(ctx, indexKey, entry.SessionID)
		if s.ttl > 0 {
			pipe.Expire(ctx, indexKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// Get retrieves an entry by session id.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Entry, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}

	return &entry, nil
}

// List returns all entries for a client, fetched with a single pipelined GET.
// Index members whose entry has expired are silently dropped; an entry whose
// stored bytes no longer parse comes back as a shell carrying only the raw
// snapshot, so restoration can count it as corrupt instead of losing it.
func (s *RedisStore) List(ctx context.Context, clientID string) ([]*Entry, error) {
	if clientID == "" {
		return nil, ErrInvalidID
	}

	ids, err := s.client.SMembers(ctx, s.clientIndexKey(clientID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	entries := make([]*Entry, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired member, index is lazily cleaned
			}
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			entries = append(entries, &Entry{
				SessionID: ids[i],
				ClientID:  clientID,
				Snapshot:  json.RawMessage(data),
			})
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// Delete removes an entry and its client index membership.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	entry, err := s.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrCorruptEntry) {
		return err
	}

	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, s.sessionKey(sessionID))
	if entry != nil && entry.ClientID != "" {
		pipe.SRem(ctx, s.clientIndexKey(entry.ClientID), sessionID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping probes the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// sessionKey generates the Redis key for a session entry.
func (s *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, sessionID)
}

// clientIndexKey generates the Redis key for a client's session index.
func (s *RedisStore) clientIndexKey(clientID string) string {
	return fmt.Sprintf("%s:client:%s:sessions", s.prefix, clientID)
}

// extractIDFromKey extracts the session ID from a Redis key.
func (s *RedisStore) extractIDFromKey(key string) string {
	prefix := s.sessionKey("")
	if strings.HasPrefix(key, prefix) {
		return strings.TrimPrefix(key, prefix)
	}
	return ""
}

// ScanAll iterates all session entries regardless of client, used by stats
// and embedding regeneration.
func (s *RedisStore) ScanAll(ctx context.Context) ([]*Entry, error) {
	var entries []*Entry
	pattern := s.sessionKey("*")
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		id := s.extractIDFromKey(iter.Val())
		if id == "" {
			continue
		}
		entry, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorruptEntry) {
				continue
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return entries, nil
}

// compile-time check that RedisStore implements Store
var _ Store = (*RedisStore)(nil)

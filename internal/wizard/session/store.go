// internal/wizard/session/store.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"loan-wizard/internal/models"
)

var ErrSnapshotNotFound = errors.New("SNAPSHOT_NOT_FOUND")

// SnapshotStore persists session read models between requests.
type SnapshotStore interface {
	Save(ctx context.Context, snap models.Snapshot) error
	Load(ctx context.Context, id string) (models.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// MemorySnapshotStore keeps encoded snapshots in process memory.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{items: make(map[string][]byte)}
}

func (s *MemorySnapshotStore) Save(_ context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.mu.Lock()
	s.items[snap.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemorySnapshotStore) Load(_ context.Context, id string) (models.Snapshot, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return decodeSnapshot(data)
}

func (s *MemorySnapshotStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

// RedisSnapshotStore keeps snapshots in Redis with a sliding TTL.
type RedisSnapshotStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisSnapshotStore(client redis.Cmdable, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		client: client,
		ttl:    ttl,
		prefix: "loan-wizard:session:",
	}
}

func (s *RedisSnapshotStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, id string) (models.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("redis get snapshot %s: %w", id, err)
	}
	return decodeSnapshot(data)
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete snapshot %s: %w", id, err)
	}
	return nil
}

func decodeSnapshot(data []byte) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

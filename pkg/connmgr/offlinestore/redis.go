// Package offlinestore provides an optional Redis mirror of a
// connection's offline message queue. It is not wired in: nothing in
// pkg/connmgr or the gateway calls Save, Load or Delete, so the
// in-memory offline queue in pkg/connmgr is the only queue the runtime
// uses and its contents do not survive a process restart. Grounded on
// r3e-network-service_layer's Redis client usage.
package offlinestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry mirrors one queued outbound message.
type Entry struct {
	MessageType int    `json:"messageType"`
	Payload     []byte `json:"payload"`
	Priority    int    `json:"priority"`
}

// Store backs up per-connection offline queues in Redis with a bounded
// TTL matching the reconnect grace window.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Store against an existing Redis client.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

func key(connID string) string { return "live:offline:" + connID }

// Save persists the full offline queue snapshot for a connection.
func (s *Store) Save(ctx context.Context, connID string, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(connID), data, s.ttl).Err()
}

// Load retrieves a previously persisted queue snapshot, if any.
func (s *Store) Load(ctx context.Context, connID string) ([]Entry, error) {
	data, err := s.client.Get(ctx, key(connID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes a connection's persisted snapshot.
func (s *Store) Delete(ctx context.Context, connID string) error {
	return s.client.Del(ctx, key(connID)).Err()
}

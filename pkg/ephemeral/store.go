// Package ephemeral implements the ephemeral key-value contract of spec §6
// (presence, operation-log window, chat ring) on top of Redis, grounded on
// realtime_whiteboard's redis/connection.go connection pattern. Unlike the
// durable store, entries here may simply expire: missing presence or
// operation-log entries degrade gracefully (§4.3) rather than corrupt
// correctness.
package ephemeral

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"collab-editor/pkg/ot"
)

// Cursor is a participant's last-known caret position in a file.
type Cursor struct {
	FileID string `json:"file_id"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Presence is the record surfaced by Presence Registry (C3), keyed by
// (room, user). Reconnection evicts the prior entry at the same key.
type Presence struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Color     string    `json:"color"`
	Cursor    *Cursor   `json:"cursor,omitempty"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChatMessage is one ring entry; Ephemeral TTL is applied to the whole ring.
type ChatMessage struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	CodeSnippet  string    `json:"code_snippet,omitempty"`
}

// Store is the ephemeral-store contract consumed by the room hub: presence
// (C3), operation log (C4), and the chat ring.
type Store interface {
	PutPresence(ctx context.Context, roomID string, p Presence, ttl time.Duration) error
	GetPresence(ctx context.Context, roomID string) ([]Presence, error)
	DropPresence(ctx context.Context, roomID, userID string) error

	PushOp(ctx context.Context, fileID string, op ot.Operation, window int, ttl time.Duration) error
	ListOps(ctx context.Context, fileID string) ([]ot.Operation, error)

	PushChat(ctx context.Context, roomID string, msg ChatMessage, ringSize int, ttl time.Duration) error
	ListChat(ctx context.Context, roomID string, limit int) ([]ChatMessage, error)
}

// RedisStore implements Store on a go-redis client.
type RedisStore struct {
	client *redis.Client
}

// Connect dials Redis using REDIS_ADDR (or url if non-empty), matching the
// fallback chain realtime_whiteboard's redis/connection.go uses.
func Connect(url string) (*RedisStore, error) {
	addr := url
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func presenceKey(roomID, userID string) string {
	return fmt.Sprintf("presence:%s:%s", roomID, userID)
}

func presencePrefix(roomID string) string {
	return fmt.Sprintf("presence:%s:*", roomID)
}

func opLogKey(fileID string) string {
	return fmt.Sprintf("pending:%s", fileID)
}

func chatKey(roomID string) string {
	return fmt.Sprintf("chat:%s", roomID)
}

func (s *RedisStore) PutPresence(ctx context.Context, roomID string, p Presence, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	return s.client.Set(ctx, presenceKey(roomID, p.UserID), data, ttl).Err()
}

// GetPresence lists every presence entry in the room via prefix scan,
// implementing §6's list_by_prefix over SCAN so it never blocks Redis the
// way KEYS would on a large keyspace.
func (s *RedisStore) GetPresence(ctx context.Context, roomID string) ([]Presence, error) {
	var out []Presence
	iter := s.client.Scan(ctx, 0, presencePrefix(roomID), 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read presence key %s: %w", iter.Val(), err)
		}
		var p Presence
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
		}
		out = append(out, p)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence: %w", err)
	}
	return out, nil
}

func (s *RedisStore) DropPresence(ctx context.Context, roomID, userID string) error {
	return s.client.Del(ctx, presenceKey(roomID, userID)).Err()
}

// PushOp appends op to the file's operation-log window, trims it to window
// entries, and renews its TTL — the C4 contract of spec §4.3.
func (s *RedisStore) PushOp(ctx context.Context, fileID string, op ot.Operation, window int, ttl time.Duration) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}
	key := opLogKey(fileID)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-window), -1)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to push operation: %w", err)
	}
	return nil
}

func (s *RedisStore) ListOps(ctx context.Context, fileID string) ([]ot.Operation, error) {
	raw, err := s.client.LRange(ctx, opLogKey(fileID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	out := make([]ot.Operation, 0, len(raw))
	for _, item := range raw {
		var op ot.Operation
		if err := json.Unmarshal([]byte(item), &op); err != nil {
			return nil, fmt.Errorf("failed to unmarshal operation: %w", err)
		}
		out = append(out, op)
	}
	return out, nil
}

// PushChat appends to the room's chat ring, trims it to ringSize, and
// renews its TTL (default 86400s per spec §3).
func (s *RedisStore) PushChat(ctx context.Context, roomID string, msg ChatMessage, ringSize int, ttl time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}
	key := chatKey(roomID)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-ringSize), -1)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to push chat message: %w", err)
	}
	return nil
}

// ListChat returns up to the last limit messages, oldest first.
func (s *RedisStore) ListChat(ctx context.Context, roomID string, limit int) ([]ChatMessage, error) {
	raw, err := s.client.LRange(ctx, chatKey(roomID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	out := make([]ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)

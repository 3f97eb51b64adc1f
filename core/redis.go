package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuditEntry is one login verdict as kept in the audit trail. It never holds
// the password.
type AuditEntry struct {
	RequestID string    `json:"request_id" yaml:"request_id"`
	Username  string    `json:"username" yaml:"username"`
	Kind      ErrorKind `json:"kind" yaml:"kind"`
	At        time.Time `json:"at" yaml:"at"`
}

// AuditSink receives verdicts after they are decided. The validator never
// reads from it.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// NopAuditSink discards entries; used when the audit trail is disabled.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditEntry) error { return nil }

// RedisAuditSink keeps the newest entries in a capped Redis list.
type RedisAuditSink struct {
	client *redis.Client
	key    string
	max    int64
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

func NewRedisAuditSink(client *redis.Client, key string, maxEntries int64) *RedisAuditSink {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &RedisAuditSink{client: client, key: key, max: maxEntries}
}

// NewAuditSink picks the sink for cfg. On success the close func is never nil.
func NewAuditSink(cfg Config) (AuditSink, func() error, error) {
	if cfg.AuditRedisURL == "" {
		return NopAuditSink{}, func() error { return nil }, nil
	}
	client, err := NewRedisClient(cfg.AuditRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect audit redis: %w", err)
	}
	return NewRedisAuditSink(client, cfg.AuditListKey, cfg.AuditMaxEntries), client.Close, nil
}

// Record pushes e to the head of the list (LPUSH) and trims the tail in the
// same transaction.
func (s *RedisAuditSink) Record(ctx context.Context, e AuditEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, b)
		pipe.LTrim(ctx, s.key, 0, s.max-1)
		return nil
	})
	return err
}

// Recent returns up to n entries, newest first.
func (s *RedisAuditSink) Recent(ctx context.Context, n int64) ([]AuditEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(raw))
	for _, r := range raw {
		var e AuditEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	pkgredis "github.com/talking-potato/booking-service/pkg/redis"
)

const (
	// dedupKeyPrefix namespaces dedup tokens in Redis
	dedupKeyPrefix = "booking:dedup:"

	// DefaultDedupTTL bounds how long a processed token is remembered.
	// Queue redelivery happens within minutes; 24h leaves a wide margin.
	DefaultDedupTTL = 24 * time.Hour
)

// DedupStore records processed message tokens so at-least-once redelivery
// does not re-admit an already-decided request. Checking and recording are
// separate operations: a token must be recorded only after the admission
// decision is durable. Recording it earlier would turn a crash between
// the mark and the ledger commit into a silently lost request, because
// the redelivery would be skipped as a duplicate.
type DedupStore interface {
	// Seen reports whether the token has been recorded.
	Seen(ctx context.Context, token string) (bool, error)
	// MarkProcessed records the token.
	MarkProcessed(ctx context.Context, token string) error
}

// RedisDedupStore implements DedupStore on Redis with TTL'd token keys
type RedisDedupStore struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// NewRedisDedupStore creates a new RedisDedupStore
func NewRedisDedupStore(client *pkgredis.Client, ttl time.Duration) *RedisDedupStore {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDedupStore{client: client, ttl: ttl}
}

// Seen reports whether the token has been recorded
func (s *RedisDedupStore) Seen(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup token: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records the token with the configured TTL
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, dedupKeyPrefix+token, time.Now().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record dedup token: %w", err)
	}
	return nil
}

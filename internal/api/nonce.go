/**
 * @description
 * Nonce storage for the sign-in-with-wallet challenge flow. A nonce is issued
 * per wallet, survives one verification attempt, and expires after a short
 * TTL. Redis backs the store in production so challenges survive restarts
 * and work across replicas; an in-memory fallback keeps local development
 * working without Redis.
 */

package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore issues and consumes single-use sign-in nonces.
type NonceStore interface {
	Issue(ctx context.Context, wallet string) (string, error)
	// Consume atomically removes the nonce; it reports whether the provided
	// value matched the stored one.
	Consume(ctx context.Context, wallet, nonce string) (bool, error)
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RedisNonceStore stores nonces in Redis with a TTL.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisNonceStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisNonceStore {
	if prefix == "" {
		prefix = "invoicenow:auth_nonce"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisNonceStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisNonceStore) key(wallet string) string {
	return fmt.Sprintf("%s:%s", s.prefix, wallet)
}

func (s *RedisNonceStore) Issue(ctx context.Context, wallet string) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(wallet), nonce, s.ttl).Err(); err != nil {
		return "", err
	}
	return nonce, nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, wallet, nonce string) (bool, error) {
	stored, err := s.client.GetDel(ctx, s.key(wallet)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return stored == nonce, nil
}

// MemoryNonceStore is the single-process fallback used when Redis is not
// configured, and in tests.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]memoryNonce
	ttl    time.Duration
}

type memoryNonce struct {
	value     string
	expiresAt time.Time
}

func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryNonceStore{nonces: make(map[string]memoryNonce), ttl: ttl}
}

func (s *MemoryNonceStore) Issue(_ context.Context, wallet string) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[wallet] = memoryNonce{value: nonce, expiresAt: time.Now().Add(s.ttl)}
	return nonce, nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, wallet, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.nonces[wallet]
	if !ok {
		return false, nil
	}
	delete(s.nonces, wallet)
	if time.Now().After(stored.expiresAt) {
		return false, nil
	}
	return stored.value == nonce, nil
}

package tokens

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoSigningKey = errors.New("no signing key")

// KeyLoader fetches the current token signing key.
type KeyLoader func(ctx context.Context) ([]byte, error)

// KeyCache holds the signing key for a bounded time. It is built once at
// start-up and shared by every handler that verifies tokens.
type KeyCache struct {
	load KeyLoader
	ttl  time.Duration
	now  func() time.Time

	mu        sync.RWMutex
	key       []byte
	fetchedAt time.Time
}

func NewKeyCache(load KeyLoader, ttl time.Duration) *KeyCache {
	return &KeyCache{load: load, ttl: ttl, now: time.Now}
}

// StaticKey is a loader for a key that comes from configuration.
func StaticKey(key []byte) KeyLoader {
	return func(context.Context) ([]byte, error) {
		if len(key) == 0 {
			return nil, ErrNoSigningKey
		}
		return key, nil
	}
}

func (c *KeyCache) Get(ctx context.Context) ([]byte, error) {
	c.mu.RLock()
	key, fetchedAt := c.key, c.fetchedAt
	c.mu.RUnlock()
	if key != nil && c.now().Sub(fetchedAt) < c.ttl {
		return key, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.key, nil
	}

	fresh, err := c.load(ctx)
	if err != nil {
		// keep serving the stale key while the loader is failing
		if c.key != nil {
			return c.key, nil
		}
		return nil, err
	}
	c.key = fresh
	c.fetchedAt = c.now()
	return fresh, nil
}

// Invalidate forces the next Get to reload.
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	c.key = nil
	c.mu.Unlock()
}

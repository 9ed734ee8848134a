package gateway

import (
	"context"
	"sync"
	"time"
)

// TokenFetcher obtains a fresh bearer credential and its validity period.
type TokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenCache holds one bearer credential. The cached copy always expires before the
// provider's copy does. Concurrent refreshes may both fetch; the last one stored wins.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	margin time.Duration
	fetch  TokenFetcher
	now    func() time.Time
}

func NewTokenCache(margin time.Duration, fetch TokenFetcher) *TokenCache {
	return &TokenCache{
		margin: margin,
		fetch:  fetch,
		now:    time.Now,
	}
}

// Token returns the cached credential, refreshing it first when it is no longer valid.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, ok := c.token, c.validLocked()
	c.mu.RUnlock()
	if ok {
		return token, nil
	}
	return c.Refresh(ctx)
}

func (c *TokenCache) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

func (c *TokenCache) validLocked() bool {
	return c.token != "" && c.now().Before(c.expiresAt)
}

func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	token, ttl, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.now().Add(c.lifetime(ttl))
	c.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached credential, e.g. after the provider rejected it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

// lifetime is ttl minus the margin. Short-lived tokens keep half their ttl.
func (c *TokenCache) lifetime(ttl time.Duration) time.Duration {
	if ttl > c.margin {
		return ttl - c.margin
	}
	return ttl / 2
}

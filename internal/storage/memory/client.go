package memory

import (
	"context"
	"sync"
	"time"

	"github.com/frinder/internal/storage"
)

type Client struct {
	mu    sync.Mutex
	now   func() time.Time
	keys  map[string]time.Time
	limit map[string][]time.Time
}

func New() *Client {
	return &Client{
		now:   time.Now,
		keys:  make(map[string]time.Time),
		limit: make(map[string][]time.Time),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) alive(key string) bool {
	exp, ok := c.keys[key]
	if !ok {
		return false
	}
	if !c.now().Before(exp) {
		delete(c.keys, key)
		return false
	}
	return true
}

func (c *Client) SetTyping(_ context.Context, matchID, userID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[storage.TypingKey(matchID, userID)] = c.now().Add(ttl)
	return nil
}

func (c *Client) IsTyping(_ context.Context, matchID, userID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive(storage.TypingKey(matchID, userID)), nil
}

func (c *Client) ClearTyping(_ context.Context, matchID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, storage.TypingKey(matchID, userID))
	return nil
}

func (c *Client) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := "once:" + key
	if c.alive(k) {
		return false, nil
	}
	c.keys[k] = c.now().Add(ttl)
	return true, nil
}

func (c *Client) CheckRateLimit(_ context.Context, key string, window time.Duration, max int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cut := now.Add(-window)
	var kept []time.Time
	for _, t := range c.limit[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= max {
		c.limit[key] = kept
		return false, nil
	}
	c.limit[key] = append(kept, now)
	return true, nil
}

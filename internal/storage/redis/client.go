package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/frinder/internal/storage"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Redis: нижележащий клиент (push-сервис хранит в нём подписки).
func (c *Client) Redis() *redis.Client {
	return c.cli
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SetTyping ставит typing:{match}:{user} с TTL: без обновления флаг исчезает сам.
func (c *Client) SetTyping(ctx context.Context, matchID, userID string, ttl time.Duration) error {
	if err := c.cli.Set(ctx, storage.TypingKey(matchID, userID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis.SetTyping: %w", err)
	}
	return nil
}

func (c *Client) IsTyping(ctx context.Context, matchID, userID string) (bool, error) {
	n, err := c.cli.Exists(ctx, storage.TypingKey(matchID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis.IsTyping: %w", err)
	}
	return n > 0, nil
}

// ClearTyping: жёсткое удаление флага (отправка сообщения, уход из чата).
func (c *Client) ClearTyping(ctx context.Context, matchID, userID string) error {
	if err := c.cli.Del(ctx, storage.TypingKey(matchID, userID)).Err(); err != nil {
		return fmt.Errorf("redis.ClearTyping: %w", err)
	}
	return nil
}

// MarkOnce: SET NX once:{key}. Так API не шлёт второй пуш о принятом свидании.
func (c *Client) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.cli.SetNX(ctx, "once:"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis.MarkOnce: %w", err)
	}
	return ok, nil
}

// CheckRateLimit: фиксированное окно limit:{key}, INCR и EXPIRE NX в одной транзакции.
func (c *Client) CheckRateLimit(ctx context.Context, key string, window time.Duration, max int) (allowed bool, err error) {
	k := "limit:" + key
	var incr *redis.IntCmd
	_, err = c.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis.CheckRateLimit: %w", err)
	}
	return incr.Val() <= int64(max), nil
}

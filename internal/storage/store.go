package storage

import (
	"context"
	"time"
)

// Store хранит эфемерное состояние API: флаги «печатает» с TTL, ключи дедупликации, лимиты запросов.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type Store interface {
	SetTyping(ctx context.Context, matchID, userID string, ttl time.Duration) error
	IsTyping(ctx context.Context, matchID, userID string) (bool, error)
	ClearTyping(ctx context.Context, matchID, userID string) error
	// MarkOnce возвращает true только для первого вызова с ключом за время ttl.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	CheckRateLimit(ctx context.Context, key string, window time.Duration, max int) (allowed bool, err error)
	Close() error
}

func TypingKey(matchID, userID string) string {
	return "typing:" + matchID + ":" + userID
}

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/frinder/internal/logger"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 200
	rateLimitMaxUser = 100
)

// RateCounter считает запросы в окне (storage.Store, Redis или память в -dev).
type RateCounter interface {
	CheckRateLimit(ctx context.Context, key string, window time.Duration, max int) (bool, error)
}

// RateLimit ограничивает запросы по IP. 429 при превышении; ошибка хранилища запрос не блокирует.
func RateLimit(counter RateCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(r.Context(), counter, "ip:"+clientIP(r), rateLimitMaxIP) {
				tooMany(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitUser: лимит по user_id; ставится после TokenAuth.
func RateLimitUser(counter RateCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := GetUserID(r.Context()); userID != "" {
				if !allow(r.Context(), counter, "u:"+userID, rateLimitMaxUser) {
					tooMany(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, counter RateCounter, key string, max int) bool {
	ok, err := counter.CheckRateLimit(ctx, key, rateLimitWindow, max)
	if err != nil {
		logger.Errorf("ratelimit %s: %v", key, err)
		return true
	}
	return ok
}

func tooMany(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
}

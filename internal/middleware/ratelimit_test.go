package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/frinder/internal/storage/memory"
)

type brokenCounter struct{}

func (brokenCounter) CheckRateLimit(context.Context, string, time.Duration, int) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitPerUser(t *testing.T) {
	store := memory.New()
	h := RateLimit(store)(RateLimitUser(store)(whoami()))
	do := func(user, ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/matches", nil)
		req.Header.Set("X-Real-Ip", ip)
		req = req.WithContext(WithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < rateLimitMaxUser; i++ {
		// разные IP, чтобы сработал лимит именно пользователя
		assert.Equal(t, http.StatusOK, do("alice", "10.0.0."+string(rune('a'+i%20))))
	}
	assert.Equal(t, http.StatusTooManyRequests, do("alice", "10.0.1.1"))
	assert.Equal(t, http.StatusOK, do("bob", "10.0.1.1"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(brokenCounter{})(whoami())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

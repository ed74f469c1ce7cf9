package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frinder/internal/config"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/repository"
	"github.com/frinder/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{fmt.Errorf("matchRepo.GetByID: %w", repository.ErrNotFound), http.StatusNotFound, "not found"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{service.ErrUnmatched, http.StatusConflict, service.ErrUnmatched.Error()},
		{service.ErrCallInProgress, http.StatusConflict, service.ErrCallInProgress.Error()},
		{service.ErrInvalidState, http.StatusConflict, service.ErrInvalidState.Error()},
		{&service.ValidationError{Msg: "text or image_url required"}, http.StatusBadRequest, "text or image_url required"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, "test", tt.err)
			assert.Equal(t, tt.code, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

type checkoutStore struct {
	saved []model.CheckoutMapping
}

func (s *checkoutStore) GetSubscription(_ context.Context, _ string) (*model.Subscription, error) {
	return nil, repository.ErrNotFound
}

func (s *checkoutStore) SavePending(_ context.Context, m *model.CheckoutMapping) error {
	s.saved = append(s.saved, *m)
	return nil
}

func TestSavePendingCheckout(t *testing.T) {
	store := &checkoutStore{}
	r := chi.NewRouter()
	r.Post("/api/save-pending-checkout", NewCheckoutHandler(service.NewCheckoutService(store)).SavePending)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/save-pending-checkout", bytes.NewBufferString(body)))
		return rec
	}

	rec := post(`{"firebaseUid":"uid_1","whopUserId":"user_abc"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	require.Len(t, store.saved, 1)
	assert.Equal(t, "user_abc", store.saved[0].WhopUserID)

	rec = post(`{"firebaseUid":"uid_1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing firebaseUid or whopUserId"}`, rec.Body.String())

	rec = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, store.saved, 1)
}

func TestCallConfig(t *testing.T) {
	cfg := &config.Config{
		CallICEServers: []config.IceServer{{URLs: []string{"stun:stun.example.org:3478"}}},
		TypingTTL:      3 * time.Second,
	}
	h := NewConfigHandler(cfg)

	rec := httptest.NewRecorder()
	h.GetCallConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config/call", nil))
	assert.JSONEq(t, `{"ice_servers":[{"urls":["stun:stun.example.org:3478"]}],"typing_ttl_seconds":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.GetPushConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config/push", nil))
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())
}

func TestCheckOrigin(t *testing.T) {
	h := NewWSHandler(context.Background(), nil, "https://frinder.app, https://staging.frinder.app")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, h.checkOrigin(req), "no Origin header (native client)")
	req.Header.Set("Origin", "https://staging.frinder.app")
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))

	rec := httptest.NewRecorder()
	h.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

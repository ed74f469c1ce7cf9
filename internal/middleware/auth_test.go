package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestTokenAuth(t *testing.T) {
	h := TokenAuth("secret", "frinder")(whoami())
	good, err := IssueToken("secret", "frinder", "alice", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("secret", "frinder", "alice", -time.Hour)
	require.NoError(t, err)
	foreign, err := IssueToken("other", "frinder", "alice", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := IssueToken("secret", "someone", "alice", time.Hour)
	require.NoError(t, err)
	noSubject, err := IssueToken("secret", "frinder", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		code   int
		user   string
	}{
		{"bearer", "Bearer " + good, "", http.StatusOK, "alice"},
		{"query token for websocket", "", good, http.StatusOK, "alice"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic " + good, "", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized, ""},
		{"bad signature", "Bearer " + foreign, "", http.StatusUnauthorized, ""},
		{"wrong issuer", "Bearer " + wrongIssuer, "", http.StatusUnauthorized, ""},
		{"no subject", "Bearer " + noSubject, "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/matches"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.user != "" {
				assert.Equal(t, tt.user, rec.Body.String())
			}
		})
	}
}

func TestInternalOnly(t *testing.T) {
	h := InternalOnly("s3cret")(whoami())

	req := httptest.NewRequest(http.MethodPost, "/internal/notify", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("X-Internal-Secret", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/internal/notify", nil)
	req.RemoteAddr = "10.0.0.5:5000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

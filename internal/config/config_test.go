package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://db/frinder")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
	assert.Equal(t, 20, cfg.DBMaxConnections())
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Len(t, cfg.CallICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.CallICEServers[0].URLs)
	assert.Empty(t, cfg.PushServiceURL)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("CONFIG_PATH", writeFile(t, "api.yaml", `
server_addr: ":9000"
typing_ttl_seconds: 5
cors_allowed_origins: "https://frinder.app"
database:
  url: postgres://yaml/frinder
  max_connections: 7
call_ice_servers:
  - urls: ["turn:turn.frinder.app:3478"]
    username: u
    credential: p
`))
	t.Setenv("SERVER_ADDR", ":9100")
	t.Setenv("TYPING_TTL_SECONDS", "-1")

	cfg := Load()
	assert.Equal(t, ":9100", cfg.ServerAddr)
	assert.Equal(t, "postgres://yaml/frinder", cfg.DatabaseURL())
	assert.Equal(t, 7, cfg.DBMaxConnections())
	// неположительный TTL заменяется значением по умолчанию
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
	require.Len(t, cfg.CallICEServers, 1)
	assert.Equal(t, "u", cfg.CallICEServers[0].Username)

	t.Setenv("CALL_ICE_SERVERS", `[{"urls":["stun:a"]},{"urls":["stun:b"]}]`)
	assert.Len(t, Load().CallICEServers, 2)

	t.Setenv("CALL_ICE_SERVERS", `not json`)
	assert.Equal(t, "u", Load().CallICEServers[0].Username)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CLIENT_CONFIG_PATH", writeFile(t, "headless.yaml", `
api_url: http://yaml:8080
user_id: alice
auto_answer: false
`))
	t.Setenv("API_URL", "http://env:8080/")
	t.Setenv("FRINDER_TOKEN", "tok")

	cc := LoadClient()
	assert.Equal(t, "http://env:8080", cc.APIURL)
	assert.Equal(t, "alice", cc.UserID)
	assert.Equal(t, "tok", cc.Token)
	assert.False(t, cc.AutoAnswer)
	assert.Equal(t, ".frinder-headless.yaml", cc.StateFile)

	t.Setenv("FRINDER_AUTO_ANSWER", "true")
	assert.True(t, LoadClient().AutoAnswer)
}

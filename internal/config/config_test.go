package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg := LoadServer()

	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, "chat.events", cfg.AMQPExchange)
	require.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadClientDuration(t *testing.T) {
	t.Setenv("CHAT_HTTP_TIMEOUT", "3")
	require.Equal(t, 3*time.Second, LoadClient().HTTPTimeout)

	t.Setenv("CHAT_HTTP_TIMEOUT", "250ms")
	require.Equal(t, 250*time.Millisecond, LoadClient().HTTPTimeout)

	t.Setenv("CHAT_HTTP_TIMEOUT", "soon")
	require.Equal(t, 10*time.Second, LoadClient().HTTPTimeout)
}

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHAT_USERNAME=from-file\nCHAT_STREAM_URL=ws://example/ws\n"), 0o600))

	t.Setenv("CHAT_USERNAME", "from-env")
	t.Setenv("CHAT_STREAM_URL", "")
	os.Unsetenv("CHAT_STREAM_URL")

	LoadEnvFile(path)
	cfg := LoadClient()
	require.Equal(t, "from-env", cfg.Username)
	require.Equal(t, "ws://example/ws", cfg.StreamURL)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.FlushWindow)
	assert.True(t, cfg.Docker.Enabled)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: 127.0.0.1:9000
node_id: edge-1
flush_window: 250ms
store:
  path: /var/lib/livesync.db
docker:
  enabled: false
auth:
  secret: from-file
`), 0o644))

	t.Setenv("LIVESYNC_AUTH_SECRET", "from-env")
	t.Setenv("LIVESYNC_OUTBOUND_QUEUE", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "edge-1", cfg.NodeID)
	assert.Equal(t, 250*time.Millisecond, cfg.FlushWindow)
	assert.Equal(t, "/var/lib/livesync.db", cfg.Store.Path)
	assert.False(t, cfg.Docker.Enabled)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 8, cfg.OutboundQueue)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("LIVESYNC_FLUSH_WINDOW", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "LIVESYNC_FLUSH_WINDOW")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.NodeID = "a/b"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.OutboundQueue = 0
	assert.Error(t, cfg.Validate())
}

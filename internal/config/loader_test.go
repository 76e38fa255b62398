package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadFile(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		f, err := ReadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.False(t, f.Exists)
		assert.Equal(t, &Config{}, f.Config)
	})

	t.Run("values are decoded", func(t *testing.T) {
		path := writeConfig(t, `
cacheDir: /tmp/opc
log:
  timestamps: false
build:
  workers: 2
  emit: gen
serve:
  addr: 127.0.0.1:9000
  shutdownTimeout: 3s
`)
		f, err := ReadFile(path)
		require.NoError(t, err)
		assert.True(t, f.Exists)
		assert.True(t, f.IsSet(KeyLogTimestamps))
		assert.False(t, f.IsSet("unknown.key"))

		c := f.Config
		require.NotNil(t, c.Log.Timestamps)
		assert.False(t, *c.Log.Timestamps)
		assert.Equal(t, "/tmp/opc", c.CacheDir)
		assert.Equal(t, 2, c.Build.Workers)
		assert.Equal(t, "gen", c.Build.Emit)
		assert.Equal(t, "127.0.0.1:9000", c.Serve.Addr)
		assert.Equal(t, 3*time.Second, c.Serve.ShutdownTimeout)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ReadFile(writeConfig(t, "build: [unclosed\n"))
		assert.Error(t, err)
	})
}

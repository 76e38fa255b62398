package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"no tilde", "/absolute/path", "/absolute/path"},
		{"relative path", "relative/path", "relative/path"},
		{"tilde only", "~", homeDir},
		{"tilde with path", "~/.opc/config.yaml", filepath.Join(homeDir, ".opc", "config.yaml")},
		{"tilde username pattern (not expanded)", "~username/file", "~username/file"},
		{"tilde in middle (not expanded)", "/path/~/file", "/path/~/file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	paths, err := DefaultPaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".opc"), paths.HomeDir)
	assert.Equal(t, filepath.Join(home, ".opc", "config.yaml"), paths.ConfigFile)
	assert.Equal(t, filepath.Join(home, ".opc", "cache"), paths.CacheDir)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	ok, err := FileExists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	ok, err = FileExists(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

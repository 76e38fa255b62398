// Package testutil provides test helpers shared by the command and
// manifest tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// EnvPrefix is the prefix of every environment variable opc reads.
const EnvPrefix = "OPC_"

// IsolateHome points HOME at a fresh temporary directory and blanks every
// OPC_* variable for the duration of the test. It returns the new home.
func IsolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
		}
	}
	return home
}

// WriteFile creates a file with the given content in the specified directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dirs for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// WriteManifest writes a manifest into a temporary directory and returns its
// path. The extension of name selects the manifest format.
func WriteManifest(t *testing.T, name, content string) string {
	t.Helper()
	return WriteFile(t, t.TempDir(), name, content)
}

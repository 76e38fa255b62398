package config

import (
	"os"
	"path/filepath"
)

// Paths contains standard filesystem paths for opc.
type Paths struct {
	// ConfigFile is the path to the config file (~/.opc/config.yaml).
	ConfigFile string

	// CacheDir is the path to the cache directory (~/.opc/cache).
	CacheDir string

	// HomeDir is the opc home directory (~/.opc).
	HomeDir string
}

// DefaultPaths returns the default paths for opc.
func DefaultPaths() (*Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	home := filepath.Join(homeDir, ".opc")

	return &Paths{
		ConfigFile: filepath.Join(home, "config.yaml"),
		CacheDir:   filepath.Join(home, "cache"),
		HomeDir:    home,
	}, nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if len(path) == 1 {
		return homeDir, nil
	}

	// Handle ~/path/to/something
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:]), nil
	}

	// ~username is not supported
	return path, nil
}

// FileExists reports whether path (after ~ expansion) exists.
func FileExists(path string) (bool, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

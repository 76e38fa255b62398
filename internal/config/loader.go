package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// File is a configuration file as read from disk, without environment or
// flag overrides.
type File struct {
	Path   string
	Exists bool
	Config *Config

	v *viper.Viper
}

// IsSet reports whether key was present in the file.
func (f *File) IsSet(key string) bool {
	return f.v != nil && f.v.InConfig(key)
}

// ReadFile loads the YAML config file at path. A missing file is not an
// error; the result then has Exists false and an empty Config.
func ReadFile(path string) (*File, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(expanded)
	v.SetConfigType("yaml")

	f := &File{Path: expanded, Config: &Config{}, v: v}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	f.Exists = true

	if err := v.Unmarshal(f.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return f, nil
}

// Package config provides configuration loading and management.
package config

import "time"

// LogConfig contains logging-related settings.
type LogConfig struct {
	// Timestamps controls whether timestamps are shown in log output.
	// Default: true. Override with --timestamps flag.
	Timestamps *bool `mapstructure:"timestamps" yaml:"timestamps,omitempty"`
}

// BuildConfig contains pipeline build settings.
type BuildConfig struct {
	// Workers bounds concurrent executions in batch runs.
	// Env: OPC_BUILD_WORKERS, Default: 4
	Workers int `mapstructure:"workers" yaml:"workers,omitempty"`

	// Emit is the directory receiving generated units. Empty disables
	// emitting unless --emit is given.
	// Env: OPC_BUILD_EMIT
	Emit string `mapstructure:"emit" yaml:"emit,omitempty"`
}

// ServeConfig contains HTTP serving settings.
type ServeConfig struct {
	// Addr is the listen address.
	// Env: OPC_SERVE_ADDR, Default: ":8080"
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	// Env: OPC_SERVE_SHUTDOWN_TIMEOUT, Default: 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout,omitempty"`
}

// Config represents the opc configuration, loaded from
// ~/.opc/config.yaml and validated against the embedded CUE schema.
type Config struct {
	// CacheDir holds emitted units.
	// Env: OPC_CACHE_DIR, Default: ~/.opc/cache
	CacheDir string `mapstructure:"cacheDir" yaml:"cacheDir,omitempty"`

	Log   LogConfig   `mapstructure:"log" yaml:"log,omitempty"`
	Build BuildConfig `mapstructure:"build" yaml:"build,omitempty"`
	Serve ServeConfig `mapstructure:"serve" yaml:"serve,omitempty"`
}

// Defaults.
const (
	DefaultWorkers         = 4
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCacheDir        = "~/.opc/cache"
)

// DefaultConfig returns a Config with all default values populated.
// Used by `opc config init` to generate the initial config file.
func DefaultConfig() *Config {
	timestamps := true
	return &Config{
		CacheDir: DefaultCacheDir,
		Log:      LogConfig{Timestamps: &timestamps},
		Build:    BuildConfig{Workers: DefaultWorkers},
		Serve:    ServeConfig{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout},
	}
}

// WithDefaults returns a copy with unset fields defaulted.
func (c *Config) WithDefaults() *Config {
	out := *c
	if out.CacheDir == "" {
		out.CacheDir = DefaultCacheDir
	}
	if out.Build.Workers <= 0 {
		out.Build.Workers = DefaultWorkers
	}
	if out.Serve.Addr == "" {
		out.Serve.Addr = DefaultAddr
	}
	if out.Serve.ShutdownTimeout <= 0 {
		out.Serve.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/output"
)

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceFlag indicates value came from command-line flag.
	SourceFlag ConfigSource = "flag"
	// SourceEnv indicates value came from environment variable.
	SourceEnv ConfigSource = "env"
	// SourceConfig indicates value came from config file.
	SourceConfig ConfigSource = "config"
	// SourceDefault indicates value is the built-in default.
	SourceDefault ConfigSource = "default"
)

// Config keys.
const (
	KeyLogTimestamps        = "log.timestamps"
	KeyCacheDir             = "cacheDir"
	KeyBuildWorkers         = "build.workers"
	KeyBuildEmit            = "build.emit"
	KeyServeAddr            = "serve.addr"
	KeyServeShutdownTimeout = "serve.shutdownTimeout"
)

// EnvConfig overrides the config file path.
const EnvConfig = "OPC_CONFIG"

// envNames maps each key to its environment variable.
var envNames = map[string]string{
	KeyLogTimestamps:        "OPC_LOG_TIMESTAMPS",
	KeyCacheDir:             "OPC_CACHE_DIR",
	KeyBuildWorkers:         "OPC_BUILD_WORKERS",
	KeyBuildEmit:            "OPC_BUILD_EMIT",
	KeyServeAddr:            "OPC_SERVE_ADDR",
	KeyServeShutdownTimeout: "OPC_SERVE_SHUTDOWN_TIMEOUT",
}

// Keys lists the resolvable keys in resolution order.
var Keys = []string{
	KeyLogTimestamps,
	KeyCacheDir,
	KeyBuildWorkers,
	KeyBuildEmit,
	KeyServeAddr,
	KeyServeShutdownTimeout,
}

// EnvName returns the environment variable for key.
func EnvName(key string) string {
	return envNames[key]
}

// ResolvedValue is one resolved configuration value.
type ResolvedValue struct {
	Key    string
	Value  string
	Source ConfigSource
	// Shadowed contains values that were overridden by higher precedence.
	Shadowed map[ConfigSource]string
}

// ResolveOptions contains options for full resolution.
type ResolveOptions struct {
	// ConfigFlag is the --config flag value (empty if not set).
	ConfigFlag string

	// Flags holds explicitly set flag values by config key.
	Flags map[string]string
}

// Resolved is the effective configuration with the provenance of every
// value.
type Resolved struct {
	ConfigPath ResolvedValue
	File       *File
	Values     []ResolvedValue
	Config     *Config
}

// Value returns the resolved value for key.
func (r *Resolved) Value(key string) (ResolvedValue, bool) {
	for _, v := range r.Values {
		if v.Key == key {
			return v, true
		}
	}
	return ResolvedValue{}, false
}

// ResolveConfigPath resolves the config file path using precedence:
// (1) --config flag, (2) OPC_CONFIG env, (3) ~/.opc/config.yaml default.
func ResolveConfigPath(flagValue string) (ResolvedValue, error) {
	paths, err := DefaultPaths()
	if err != nil {
		return ResolvedValue{}, err
	}
	return resolve("config", flagValue, os.Getenv(EnvConfig), "", paths.ConfigFile), nil
}

// resolve applies flag > env > config > default and records what each
// chosen value shadows.
func resolve(key, flag, env, file, def string) ResolvedValue {
	candidates := []struct {
		source ConfigSource
		value  string
	}{
		{SourceFlag, flag},
		{SourceEnv, env},
		{SourceConfig, file},
		{SourceDefault, def},
	}

	rv := ResolvedValue{Key: key, Shadowed: make(map[ConfigSource]string)}
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		if rv.Source == "" {
			rv.Value, rv.Source = c.value, c.source
			continue
		}
		if c.source != SourceDefault {
			rv.Shadowed[c.source] = c.value
		}
	}
	return rv
}

// ResolveAll resolves the config path, reads the file and resolves every
// key. Malformed values are validation errors naming the key and source.
func ResolveAll(opts ResolveOptions) (*Resolved, error) {
	pathValue, err := ResolveConfigPath(opts.ConfigFlag)
	if err != nil {
		return nil, err
	}
	file, err := ReadFile(pathValue.Value)
	if err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	fileValues := fileStrings(file)
	defaultValues := map[string]string{
		KeyLogTimestamps:        "true",
		KeyCacheDir:             defaults.CacheDir,
		KeyBuildWorkers:         strconv.Itoa(defaults.Build.Workers),
		KeyServeAddr:            defaults.Serve.Addr,
		KeyServeShutdownTimeout: defaults.Serve.ShutdownTimeout.String(),
	}

	r := &Resolved{ConfigPath: pathValue, File: file, Config: &Config{}}
	for _, key := range Keys {
		rv := resolve(key, opts.Flags[key], os.Getenv(EnvName(key)), fileValues[key], defaultValues[key])
		if err := r.Config.set(rv); err != nil {
			return nil, err
		}
		r.Values = append(r.Values, rv)
	}
	return r, nil
}

func fileStrings(f *File) map[string]string {
	out := make(map[string]string)
	if !f.Exists {
		return out
	}
	c := f.Config
	if f.IsSet(KeyLogTimestamps) && c.Log.Timestamps != nil {
		out[KeyLogTimestamps] = strconv.FormatBool(*c.Log.Timestamps)
	}
	out[KeyCacheDir] = c.CacheDir
	if c.Build.Workers != 0 {
		out[KeyBuildWorkers] = strconv.Itoa(c.Build.Workers)
	}
	out[KeyBuildEmit] = c.Build.Emit
	out[KeyServeAddr] = c.Serve.Addr
	if c.Serve.ShutdownTimeout != 0 {
		out[KeyServeShutdownTimeout] = c.Serve.ShutdownTimeout.String()
	}
	return out
}

func (c *Config) set(rv ResolvedValue) error {
	invalid := func(err error) error {
		return oerrors.NewValidationError(
			fmt.Sprintf("invalid value %q from %s: %v", rv.Value, rv.Source, err), "", rv.Key, "")
	}
	switch rv.Key {
	case KeyLogTimestamps:
		if rv.Value == "" {
			return nil
		}
		b, err := strconv.ParseBool(rv.Value)
		if err != nil {
			return invalid(err)
		}
		c.Log.Timestamps = &b
	case KeyCacheDir:
		c.CacheDir = rv.Value
	case KeyBuildWorkers:
		n, err := strconv.Atoi(rv.Value)
		if err != nil {
			return invalid(err)
		}
		if n < 1 {
			return invalid(fmt.Errorf("must be at least 1"))
		}
		c.Build.Workers = n
	case KeyBuildEmit:
		c.Build.Emit = rv.Value
	case KeyServeAddr:
		c.Serve.Addr = rv.Value
	case KeyServeShutdownTimeout:
		d, err := time.ParseDuration(rv.Value)
		if err != nil {
			return invalid(err)
		}
		c.Serve.ShutdownTimeout = d
	default:
		return fmt.Errorf("unknown config key %q", rv.Key)
	}
	return nil
}

// LogResolvedValues logs configuration resolution at DEBUG level.
func LogResolvedValues(values []ResolvedValue) {
	for _, v := range values {
		output.Debug("config value resolved",
			"key", v.Key,
			"value", v.Value,
			"source", v.Source,
		)
		for source, shadowed := range v.Shadowed {
			output.Debug("  shadowed by higher precedence",
				"key", v.Key,
				"shadowed_source", source,
				"shadowed_value", shadowed,
			)
		}
	}
}

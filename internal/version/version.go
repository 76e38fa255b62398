// Package version provides version information for opc.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build-time variables set via ldflags.
var (
	// Version is the CLI version (set via ldflags).
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`

	// CUESDKVersion is the cuelang.org/go module version linked into the
	// binary; manifests and config are validated with it.
	CUESDKVersion string `json:"cueSDKVersion"`

	// ScriptEngine is the goja module version.
	ScriptEngine string `json:"scriptEngine"`
}

// Get returns the current version information.
func Get() Info {
	return Info{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		GoVersion:     runtime.Version(),
		CUESDKVersion: moduleVersion("cuelang.org/go"),
		ScriptEngine:  moduleVersion("github.com/dop251/goja"),
	}
}

func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}

// String returns a human-readable version string.
func (i Info) String() string {
	return fmt.Sprintf("opc version %s\n  Commit:    %s\n  Built:     %s\n  Go:        %s\n  CUE SDK:   %s\n  goja:      %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.CUESDKVersion, i.ScriptEngine)
}

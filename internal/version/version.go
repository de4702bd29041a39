// Package version reports what mailflow build is running. The variables are
// set at build time via -ldflags; `go install` builds fall back to the
// module build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build-time variables set via ldflags
var (
	// Version is the semantic version (e.g., "v0.3.0") or branch name if not a tagged build
	Version = "dev"

	// GitCommit is the short git commit SHA
	GitCommit = "unknown"

	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

const playwrightModule = "github.com/playwright-community/playwright-go"

// Info contains structured version information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	// Playwright is the playwright-go module version, which pins the
	// browser driver that gets installed.
	Playwright string `json:"playwright" yaml:"playwright"`
}

var readBuildInfo = debug.ReadBuildInfo

// GetInfo returns the current version info.
func GetInfo() Info {
	info := Info{
		Version:    Version,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
		Playwright: "unknown",
	}
	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" && len(s.Value) >= 7 {
				info.GitCommit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
	for _, dep := range bi.Deps {
		if dep.Path == playwrightModule {
			info.Playwright = dep.Version
		}
	}
	return info
}

// String returns a human-readable version string.
// Format: "v0.3.0 (abc1234)"
func String() string {
	i := GetInfo()
	return fmt.Sprintf("%s (%s)", i.Version, i.GitCommit)
}

// Full returns the full version string with all details.
func Full() string {
	i := GetInfo()
	return fmt.Sprintf("%s (%s) built %s with %s, playwright-go %s", i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Playwright)
}

package common

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/bobmcallan/vire-analyzer/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

var buildInfoOnce sync.Once

// fillFromBuildInfo replaces values still at their defaults with what the Go
// toolchain stamped into the binary (module version, vcs time and revision).
func fillFromBuildInfo() {
	buildInfoOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		applyBuildInfo(info)
	})
}

func applyBuildInfo(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.time":
			if Build == "unknown" && s.Value != "" {
				Build = s.Value
			}
		case "vcs.revision":
			if GitCommit == "unknown" && len(s.Value) >= 7 {
				GitCommit = s.Value[:7]
			}
		}
	}
}

// GetVersion returns the semantic version string
func GetVersion() string {
	fillFromBuildInfo()
	return Version
}

// GetBuild returns the build timestamp
func GetBuild() string {
	fillFromBuildInfo()
	return Build
}

// GetGitCommit returns the short git commit hash
func GetGitCommit() string {
	fillFromBuildInfo()
	return GitCommit
}

// GetFullVersion returns a formatted version string with all build info
func GetFullVersion() string {
	return fmt.Sprintf("vire-analyzer %s (build: %s, commit: %s)", GetVersion(), GetBuild(), GetGitCommit())
}

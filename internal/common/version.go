package common

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Version information (set via -ldflags during build)
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

var resolveOnce sync.Once

// resolveVersion fills values ldflags did not set from the binary's
// embedded build info (go install, go build inside a checkout).
func resolveVersion() {
	resolveOnce.Do(func() {
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
		case "vcs.revision":
			if GitCommit == "unknown" && s.Value != "" {
				GitCommit = s.Value
				if len(GitCommit) > 12 {
					GitCommit = GitCommit[:12]
				}
			}
		case "vcs.time":
			if Build == "unknown" && s.Value != "" {
				Build = s.Value
			}
		}
	}
}

// GetVersion returns the current version string
func GetVersion() string {
	resolveVersion()
	return Version
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	resolveVersion()
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

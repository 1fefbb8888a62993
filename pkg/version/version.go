// Package version holds build information, overridden with -ldflags at release time.
package version

import "fmt"

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionInfo describes the running build
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// Current returns the build information of this binary
func Current() VersionInfo {
	return VersionInfo{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("Version: %s\nGitCommit: %s\nBuildTime: %s",
		v.Version, v.GitCommit, v.BuildTime)
}

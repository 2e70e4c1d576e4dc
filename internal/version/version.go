package version

import (
	"fmt"
	"runtime"
)

var (
	version = "v0.1.0"
	// gitCommit is the git sha1 + dirty if build from a dirty git, set with -ldflags
	gitCommit = "none"
)

func GetVersion() string {
	return version
}

// BuildInfo describes the compiled time information.
type BuildInfo struct {
	Version   string `json:"version,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("usercore %s (%s, %s)", b.Version, b.GitCommit, b.GoVersion)
}

// Get returns build info
func Get() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
	}
}

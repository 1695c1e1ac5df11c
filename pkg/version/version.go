// Package version reports build information for shardsearch binaries.
package version

import (
	"fmt"
	"runtime"
)

// Version is injected with -ldflags "-X .../pkg/version.Version=v1.2.3".
var Version = "dev"

// Set by the release build.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is the JSON form printed by `shardsearch version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line form, e.g. "shardsearch dev (commit unknown, go1.25.5 linux/amd64)".
func String() string {
	bi := Get()
	return fmt.Sprintf("shardsearch %s (commit %s, %s %s)", bi.Version, bi.Commit, bi.GoVersion, bi.Platform)
}

// UserAgent identifies shardsearch in outbound HTTP requests.
func UserAgent() string {
	return "shardsearch/" + Version
}

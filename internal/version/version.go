// Package version holds build metadata for the callmetrics binary.
package version

import (
	"fmt"
	"runtime"
)

// Name is the binary name reported by the version command.
const Name = "callmetrics"

// Build-time variables injected via ldflags.
var (
	Release   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Full returns the version string in the format "name release (commit)".
func Full() string {
	return fmt.Sprintf("%s %s (commit: %s)", Name, Release, GitCommit)
}

// FullWithPlatform returns the version string with build date and
// platform information.
func FullWithPlatform() string {
	return fmt.Sprintf(
		"%s (built: %s, %s/%s, %s)",
		Full(), BuildDate, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	)
}

// Package version provides build-time version information.
package version

import "fmt"

// Name is the program name shown in logs and the About dialog.
const Name = "sma-lab"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.3.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// String returns "sma-lab v<version> (<commit>, <build time>)".
func String() string {
	return fmt.Sprintf("%s v%s (%s, %s)", Name, Version, GitCommit, BuildTime)
}

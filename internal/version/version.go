// Package version holds build metadata injected at link time.
package version

import "fmt"

// Set via -ldflags "-X github.com/tsahiduek/ai-on-eks/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String returns a human-readable version line.
func String() string {
	return fmt.Sprintf("inferctl %s (commit %s, built %s)", Version, Commit, BuildDate)
}

// UserAgent returns the User-Agent value sent with every endpoint request.
func UserAgent() string {
	return "inferctl/" + Version
}

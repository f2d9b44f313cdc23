// Package version holds build information injected with ldflags, e.g.
// go build -ldflags "-X devloop/pkg/version.Version=v0.3.0".
package version

import "fmt"

//nolint:gochecknoglobals // ldflags targets
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build information for the version command.
func String() string {
	return fmt.Sprintf("devloop %s (commit %s, built %s)", Version, Commit, Date)
}

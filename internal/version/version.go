// Package version carries build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	// Version is the release version of the module.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for display.
func String() string {
	return fmt.Sprintf("%s (%s), built at %s", Version, GitSHA, BuildTime)
}

// Package version holds build metadata injected at link time via
// -ldflags "-X github.com/grove-data/canopy.report/internal/version.Version=...".
package version

var (
	// Version is the service version, "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

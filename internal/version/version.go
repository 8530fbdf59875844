// Package version carries the build identity, stamped via -ldflags.
package version

var (
	// Version is the release tag, "dev" for local builds
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Package version holds the build version of the Corral binaries.
package version

// Version is set at link time with -ldflags "-X github.com/corral-dev/corral/version.Version=...".
var Version = "dev"

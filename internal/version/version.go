// Package version carries the build version, set at link time with
// -ldflags "-X github.com/loryanstrant/unifi-documenter/internal/version.Version=...".
package version

// Version is the release version of the binary.
var Version = "dev"

// Package version holds the build version, set via ldflags at release
// time.
package version

// Version is the build version string.
var Version = "dev"

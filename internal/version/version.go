// Package version carries the build version.
package version

// Version is overridden at release builds via -ldflags.
var Version = "0.1.0-dev"

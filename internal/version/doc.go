// Package version exposes build metadata for offline-pip.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags.
package version

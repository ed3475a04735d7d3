// Package packager prepares the package manifest consumed by the installer
// and the fetcher.
//
// It keeps the install order of an existing manifest (or the built-in list),
// optionally appends archives found in the archive folder, and records a
// SHA-512 checksum for each archive.
package packager

// Package installer installs cached package archives into a local target
// directory, one pip invocation per archive, in manifest order.
//
// Every invocation gets the same flags (no dependency resolution, forced
// reinstall into the target); only the archive path changes. A failed archive
// does not stop the run unless strict mode is on, but every failure ends up
// in the returned error and in the Report.
package installer

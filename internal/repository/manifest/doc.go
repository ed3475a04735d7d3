// Package manifest implements the ordered archive manifest: its YAML file
// repository, validation, checksums and safe path resolution inside the
// archive folder.
package manifest

// Package integration runs the manifest, fetch and install commands against each other.
package integration

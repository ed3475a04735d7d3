// Package common holds helpers shared by several services: the run marker
// that keeps two offline-pip runs out of the same work dir, and detection of
// the user and host starting a run.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

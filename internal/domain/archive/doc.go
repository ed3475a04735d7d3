// Package archive models Python package archives (wheels and source
// distributions) identified by their filenames, and carries the pinned
// default install list.
package archive

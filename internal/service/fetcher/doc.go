// Package fetcher seeds the archive folder from an HTTP update folder.
//
// It downloads the remote manifest, fetches only the archives whose local
// checksum differs, and swaps them in with a checksum-verified atomic replace.
// Installing stays fully offline; fetch is the only command that talks to the network.
package fetcher

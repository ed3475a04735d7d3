package manifest

import (
	"bytes"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// ChecksumFunction is used to calculate archive hashes.
const ChecksumFunction crypto.Hash = crypto.SHA512

var (
	// ErrChecksumMismatch is returned when a file differs from its manifest entry.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	errHashUnavailable = errors.New("hash function unavailable")
)

// FileChecksum returns the raw checksum of a file.
func FileChecksum(path string) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = f.Close()
	}()

	hasher := ChecksumFunction.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return nil, fmt.Errorf("calculate checksum of %s: %w", path, err)
	}

	return hasher.Sum(nil), nil
}

// EncodedFileChecksum returns the base64 checksum as stored in manifests.
func EncodedFileChecksum(path string) (string, error) {
	sum, err := FileChecksum(path)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(sum), nil
}

// DecodeChecksum turns a manifest checksum back into bytes.
func DecodeChecksum(encoded string) ([]byte, error) {
	sum, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode checksum: %w", err)
	}

	return sum, nil
}

// VerifyFile compares path against an encoded checksum.
func VerifyFile(path, encoded string) error {
	want, err := DecodeChecksum(encoded)
	if err != nil {
		return err
	}

	got, err := FileChecksum(path)
	if err != nil {
		return err
	}

	if !bytes.Equal(want, got) {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrChecksumMismatch)
	}

	return nil
}

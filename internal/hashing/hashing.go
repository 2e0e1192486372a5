package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
)

// chunkSize is the read block size for streaming hashes. Files are never
// loaded into memory whole.
const chunkSize = 64 * 1024

// Fingerprint computes the content fingerprint of a file: a SHA-256 over the
// file bytes with the byte size and modification time folded in. A metadata
// touch without a content change therefore produces a different fingerprint;
// stale cache results are never served at the cost of some extra reprocessing.
//
// I/O errors (missing file, permissions) are returned to the caller, never
// masked with a placeholder hash.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for fingerprinting: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fmt.Errorf("failed to read %s for fingerprinting: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s for fingerprinting: %w", path, err)
	}
	hasher.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	hasher.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ContentHash computes a SHA-256 over the file bytes only. Two files with
// identical content always hash identically regardless of name or mtime,
// which is what the renamer's dedup contract needs.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fmt.Errorf("failed to read %s for hashing: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

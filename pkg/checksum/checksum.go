// Package checksum computes and verifies the SHA-256 digests recorded for model
// files. Digests are lowercase hex, as stored in files.sha256.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// ErrMismatch is returned (wrapped) by Writer.Verify when the digest differs
var ErrMismatch = errors.New("sha256 mismatch")

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifySHA256 verifies that the checksum of data matches the expected checksum.
// The comparison ignores case and surrounding whitespace.
func VerifySHA256(reader io.Reader, expectedChecksum string) (bool, error) {
	actualChecksum, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}

	return actualChecksum == normalize(expectedChecksum), nil
}

// Writer hashes everything written to it. Use it with io.MultiWriter to verify a
// download while streaming it to disk.
type Writer struct {
	h hash.Hash
	n int64
}

// NewWriter creates an empty Writer
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, _ := w.h.Write(p)
	w.n += int64(n)
	return n, nil
}

// Size is the number of bytes written
func (w *Writer) Size() int64 { return w.n }

// Sum returns the hex digest of the bytes written so far
func (w *Writer) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Verify compares the digest with expected
func (w *Writer) Verify(expected string) error {
	if got := w.Sum(); got != normalize(expected) {
		return fmt.Errorf("%w: got %s, want %s", ErrMismatch, got, normalize(expected))
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

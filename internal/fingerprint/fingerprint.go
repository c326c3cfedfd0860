// Package fingerprint computes content digests used to decide whether two
// files hold the same bytes, independent of timestamps or other metadata.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"

	"github.com/zeebo/blake3"
)

// Supported digest algorithms.
const (
	AlgorithmSHA256 = "sha256"
	AlgorithmBLAKE3 = "blake3"
)

// ErrNotRegular is returned when the fingerprinted path is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// Fingerprint is a 256-bit content digest. It is only ever compared for
// equality and never persisted.
type Fingerprint [32]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Hasher streams file content through a digest.
type Hasher struct {
	algorithm string
	newHash   func() hash.Hash
	logger    *slog.Logger
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithLogger sets the logger used for comparison warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hasher) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New returns a Hasher for the named algorithm.
func New(algorithm string, opts ...Option) (*Hasher, error) {
	h := &Hasher{
		algorithm: algorithm,
		logger:    slog.Default(),
	}

	switch algorithm {
	case AlgorithmSHA256, "":
		h.algorithm = AlgorithmSHA256
		h.newHash = sha256.New
	case AlgorithmBLAKE3:
		h.newHash = func() hash.Hash { return blake3.New() }
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q: must be one of %s, %s",
			algorithm, AlgorithmSHA256, AlgorithmBLAKE3)
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// Default returns a SHA-256 hasher logging to slog.Default().
func Default() *Hasher {
	h, _ := New(AlgorithmSHA256)
	return h
}

// Algorithm returns the digest algorithm name.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Sum fingerprints the file at path without loading it into memory.
func (h *Hasher) Sum(path string) (Fingerprint, error) {
	var fp Fingerprint

	f, err := os.Open(path)
	if err != nil {
		return fp, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fp, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return fp, fmt.Errorf("fingerprinting %s: %w", path, ErrNotRegular)
	}

	digest := h.newHash()
	if _, err := io.Copy(digest, f); err != nil {
		return fp, fmt.Errorf("reading %s: %w", path, err)
	}

	copy(fp[:], digest.Sum(nil))

	return fp, nil
}

// Equal reports whether both files fingerprint successfully to identical
// digests. Any fingerprinting error counts as "different" and is logged as
// a warning so callers re-copy rather than keep a stale file.
func (h *Hasher) Equal(pathA, pathB string) bool {
	a, err := h.Sum(pathA)
	if err != nil {
		h.warn(pathA, pathB, err)
		return false
	}

	b, err := h.Sum(pathB)
	if err != nil {
		h.warn(pathA, pathB, err)
		return false
	}

	return bytes.Equal(a[:], b[:])
}

func (h *Hasher) warn(pathA, pathB string, err error) {
	h.logger.Warn("fingerprint failed, assuming file changed",
		slog.String("source", pathA),
		slog.String("target", pathB),
		slog.String("error", err.Error()),
	)
}

// Sum fingerprints path with SHA-256.
func Sum(path string) (Fingerprint, error) {
	return Default().Sum(path)
}

// FilesEqual compares two files with SHA-256.
func FilesEqual(pathA, pathB string) bool {
	return Default().Equal(pathA, pathB)
}

package hashing

import (
	"crypto/sha1"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Algorithm selects the piece digest function. It is a construction-time
// constant for a pipeline, never a per-piece choice: every digest in a
// descriptor uses the same algorithm.
type Algorithm string

const (
	// SHA1 is the 160-bit digest the BitTorrent metainfo format expects.
	SHA1 Algorithm = "sha1"
	// BLAKE3 is a 256-bit alternative for callers that only need internal
	// integrity checking and prefer the faster, stronger hash.
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm validates a configuration value.
func ParseAlgorithm(value string) (Algorithm, error) {
	switch Algorithm(value) {
	case SHA1, "":
		return SHA1, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", value)
	}
}

// DigestSize returns the fixed digest width in bytes.
func (a Algorithm) DigestSize() int {
	switch a {
	case BLAKE3:
		return 32
	default:
		return sha1.Size
	}
}

// New returns a fresh hash state for one piece.
func (a Algorithm) New() hash.Hash {
	switch a {
	case BLAKE3:
		return blake3.New()
	default:
		return sha1.New()
	}
}

// Sum computes the digest of data in one call.
func (a Algorithm) Sum(data []byte) []byte {
	h := a.New()
	h.Write(data)
	return h.Sum(nil)
}

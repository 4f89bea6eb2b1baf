package manifest

import (
	"fmt"

	"mediapack/internal/joberr"
)

// Piece-length selection bounds. These are wire-affecting constants: a
// descriptor's piece boundaries, and therefore its digests and content
// identifier, depend on them.
const (
	// MinPieceLength is the smallest piece length the policy will select.
	MinPieceLength int64 = 1 << 14 // 16 KiB

	// MaxPieceLength is the ceiling; contents too large to fit the piece
	// target at this length are clamped here.
	MaxPieceLength int64 = 1 << 24 // 16 MiB

	// DefaultMaxPieces is the target ceiling on piece count used by the
	// automatic selection.
	DefaultMaxPieces = 1500
)

// SelectPieceLength chooses the smallest power-of-two piece length within
// [MinPieceLength, MaxPieceLength] that keeps the piece count at or below
// DefaultMaxPieces. The result is monotonic non-decreasing in totalBytes.
func SelectPieceLength(totalBytes int64) (int64, error) {
	return SelectPieceLengthWithLimit(totalBytes, DefaultMaxPieces)
}

// SelectPieceLengthWithLimit is SelectPieceLength with a caller-provided
// piece-count ceiling.
func SelectPieceLengthWithLimit(totalBytes int64, maxPieces int) (int64, error) {
	if totalBytes <= 0 {
		return 0, joberr.Wrap(joberr.ErrConfig, "piece size", "select", "content is empty", nil)
	}
	if maxPieces <= 0 {
		return 0, joberr.Wrap(joberr.ErrConfig, "piece size", "select",
			fmt.Sprintf("max pieces must be positive, got %d", maxPieces), nil)
	}

	for length := MinPieceLength; length <= MaxPieceLength; length <<= 1 {
		if ceilDiv(totalBytes, length) <= int64(maxPieces) {
			return length, nil
		}
	}
	return MaxPieceLength, nil
}

func ceilDiv(n, d int64) int64 {
	return (n + d - 1) / d
}

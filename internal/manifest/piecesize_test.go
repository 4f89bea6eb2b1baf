package manifest

import (
	"testing"

	"mediapack/internal/joberr"
)

func TestSelectPieceLengthWorkedExamples(t *testing.T) {
	cases := []struct {
		totalBytes int64
		want       int64
	}{
		{totalBytes: 104_857_600, want: 131_072},      // 100 MiB -> 128 KiB, 800 pieces
		{totalBytes: 10_000_000_000, want: 8_388_608}, // 10 GB -> 8 MiB, 1193 pieces
		{totalBytes: 1, want: MinPieceLength},
		{totalBytes: 1500 * MinPieceLength, want: MinPieceLength}, // exactly at the cap
		{totalBytes: 1500*MinPieceLength + 1, want: MinPieceLength * 2},
	}
	for _, tc := range cases {
		got, err := SelectPieceLength(tc.totalBytes)
		if err != nil {
			t.Fatalf("SelectPieceLength(%d): %v", tc.totalBytes, err)
		}
		if got != tc.want {
			t.Fatalf("SelectPieceLength(%d) = %d, want %d", tc.totalBytes, got, tc.want)
		}
	}
}

func TestSelectPieceLengthClampsAtCeiling(t *testing.T) {
	// 1 TiB cannot fit 1500 pieces at 16 MiB; the policy clamps rather
	// than failing.
	got, err := SelectPieceLength(1 << 40)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != MaxPieceLength {
		t.Fatalf("expected ceiling %d, got %d", MaxPieceLength, got)
	}
}

func TestSelectPieceLengthRejectsEmptyContent(t *testing.T) {
	if _, err := SelectPieceLength(0); !joberr.IsConfig(err) {
		t.Fatalf("expected config error for zero bytes, got %v", err)
	}
	if _, err := SelectPieceLength(-5); !joberr.IsConfig(err) {
		t.Fatalf("expected config error for negative bytes, got %v", err)
	}
}

func TestSelectPieceLengthMonotonic(t *testing.T) {
	var previous int64
	for _, totalBytes := range []int64{1, 1 << 10, 1 << 20, 25 << 20, 100 << 20, 1 << 30, 10 << 30, 1 << 40} {
		length, err := SelectPieceLength(totalBytes)
		if err != nil {
			t.Fatalf("SelectPieceLength(%d): %v", totalBytes, err)
		}
		if length < previous {
			t.Fatalf("piece length decreased: %d bytes -> %d, previous %d", totalBytes, length, previous)
		}
		if length&(length-1) != 0 {
			t.Fatalf("piece length %d is not a power of two", length)
		}
		previous = length
	}
}

func TestSelectPieceLengthWithLimit(t *testing.T) {
	got, err := SelectPieceLengthWithLimit(104_857_600, 100)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != 1<<20 { // 100 MiB / 1 MiB = 100 pieces
		t.Fatalf("expected 1 MiB pieces for a 100-piece limit, got %d", got)
	}

	if _, err := SelectPieceLengthWithLimit(1, 0); !joberr.IsConfig(err) {
		t.Fatalf("expected config error for zero limit, got %v", err)
	}
}

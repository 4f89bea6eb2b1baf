// Package descriptor assembles finished package descriptors from ordered
// piece digests and serializes them to the bencoded metainfo wire format.
//
// Serialization is a pure function of the descriptor fields: identical
// descriptors always produce byte-identical output, which callers rely on
// to re-derive the descriptor's content identifier.
package descriptor

import (
	"fmt"
	"strings"
	"time"

	"mediapack/internal/hashing"
	"mediapack/internal/joberr"
	"mediapack/internal/manifest"
)

// FileEntry is one file of the descriptor's manifest. Path holds the
// slash-split components of the relative path.
type FileEntry struct {
	Path   []string
	Length int64
}

// Descriptor is the immutable record summarizing a content source. Once
// assembled it is never mutated; Encode reads it without side effects.
type Descriptor struct {
	Name        string
	PieceLength int64
	Digests     [][]byte
	SingleFile  bool
	Files       []FileEntry
	TotalLength int64
	Trackers    []string
	Private     bool
	Comment     string
	CreatedBy   string
	CreatedAt   time.Time
	Algorithm   hashing.Algorithm
}

// PieceCount returns the number of piece digests.
func (d *Descriptor) PieceCount() int { return len(d.Digests) }

// Options carries the per-job descriptor settings.
type Options struct {
	Trackers       []string
	Private        bool
	Comment        string
	CreatedBy      string
	RequireTracker bool
	CreatedAt      time.Time // zero means assembly time
}

// Assembler combines a manifest, ordered digests, and options into a
// descriptor. Implementations are chosen once at construction.
type Assembler interface {
	Assemble(m *manifest.Manifest, pieceLength int64, digests [][]byte, name string, opts Options) (*Descriptor, error)
}

// BasicAssembler builds descriptors with exactly the provided options.
type BasicAssembler struct {
	algorithm hashing.Algorithm
}

// NewBasic returns the plain assembler.
func NewBasic(algorithm hashing.Algorithm) *BasicAssembler {
	if algorithm == "" {
		algorithm = hashing.SHA1
	}
	return &BasicAssembler{algorithm: algorithm}
}

// Assemble validates invariants and produces the descriptor.
func (a *BasicAssembler) Assemble(m *manifest.Manifest, pieceLength int64, digests [][]byte, name string, opts Options) (*Descriptor, error) {
	if m == nil || m.TotalLength <= 0 {
		return nil, joberr.Wrap(joberr.ErrConfig, "assembler", "assemble", "content is empty", nil)
	}
	if pieceLength <= 0 {
		return nil, joberr.Wrap(joberr.ErrConfig, "assembler", "assemble",
			fmt.Sprintf("piece length must be positive, got %d", pieceLength), nil)
	}
	if want := m.PieceCount(pieceLength); len(digests) != want {
		return nil, joberr.Wrap(joberr.ErrConfig, "assembler", "assemble",
			fmt.Sprintf("digest count %d does not match piece count %d", len(digests), want), nil)
	}
	if strings.TrimSpace(name) == "" {
		return nil, joberr.Wrap(joberr.ErrConfig, "assembler", "assemble", "descriptor name is empty", nil)
	}
	if opts.RequireTracker && len(opts.Trackers) == 0 {
		return nil, joberr.Wrap(joberr.ErrConfig, "assembler", "assemble", "at least one tracker is required", nil)
	}
	width := a.algorithm.DigestSize()
	for index, digest := range digests {
		if len(digest) != width {
			return nil, joberr.Wrap(joberr.ErrConfig, "assembler", "assemble",
				fmt.Sprintf("digest %d has width %d, want %d", index, len(digest), width), nil)
		}
	}

	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	files := make([]FileEntry, len(m.Files))
	for i, file := range m.Files {
		files[i] = FileEntry{Path: strings.Split(file.RelPath, "/"), Length: file.Length}
	}

	return &Descriptor{
		Name:        name,
		PieceLength: pieceLength,
		Digests:     digests,
		SingleFile:  !m.IsDir,
		Files:       files,
		TotalLength: m.TotalLength,
		Trackers:    append([]string(nil), opts.Trackers...),
		Private:     opts.Private,
		Comment:     opts.Comment,
		CreatedBy:   opts.CreatedBy,
		CreatedAt:   createdAt,
		Algorithm:   a.algorithm,
	}, nil
}

// AnnotateFunc extends a freshly assembled descriptor, typically to append
// source details to the comment. It must not touch digests or the manifest.
type AnnotateFunc func(d *Descriptor, m *manifest.Manifest)

// EnrichedAssembler runs the basic assembly and then applies annotations.
type EnrichedAssembler struct {
	basic    *BasicAssembler
	annotate AnnotateFunc
}

// NewEnriched returns an assembler that decorates descriptors after the
// basic validation and assembly pass.
func NewEnriched(algorithm hashing.Algorithm, annotate AnnotateFunc) *EnrichedAssembler {
	return &EnrichedAssembler{basic: NewBasic(algorithm), annotate: annotate}
}

func (a *EnrichedAssembler) Assemble(m *manifest.Manifest, pieceLength int64, digests [][]byte, name string, opts Options) (*Descriptor, error) {
	d, err := a.basic.Assemble(m, pieceLength, digests, name, opts)
	if err != nil {
		return nil, err
	}
	if a.annotate != nil {
		a.annotate(d, m)
	}
	return d, nil
}

// DefaultAnnotation appends a compact content summary to the comment.
func DefaultAnnotation(d *Descriptor, m *manifest.Manifest) {
	summary := fmt.Sprintf("%d file(s), %d bytes", len(m.Files), m.TotalLength)
	if d.Comment == "" {
		d.Comment = summary
	} else {
		d.Comment = d.Comment + " | " + summary
	}
}

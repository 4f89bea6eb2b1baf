// Package manifest enumerates a content source into an ordered,
// piece-aligned virtual byte sequence and serves positioned piece reads.
//
// The file list and segment mapping are immutable after Scan, so a manifest
// is safe for concurrent reads by any number of hashing workers.
package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mediapack/internal/joberr"
)

// File is one entry of the ordered file list.
type File struct {
	// RelPath is the slash-separated path relative to the source root. For
	// a single-file source it is the file's base name.
	RelPath string
	// AbsPath locates the file on disk.
	AbsPath string
	Length  int64
}

// Segment identifies a contiguous run of bytes inside one file.
type Segment struct {
	Path   string // absolute
	Offset int64  // file-local
	Length int64
}

// Manifest is the immutable mapping from the virtual concatenation of all
// source files onto the filesystem.
type Manifest struct {
	Root        string // absolute source path
	IsDir       bool
	Files       []File
	TotalLength int64
}

// Scan builds a manifest for a single file or a directory tree. Files are
// ordered by lexicographic byte order of their relative paths; zero-length
// files are retained in the list but contribute no bytes. An empty source
// is a configuration error.
func Scan(root string) (*Manifest, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, joberr.Wrap(joberr.ErrContent, "manifest", "scan", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, joberr.Wrap(joberr.ErrContent, "manifest", "scan", abs, err)
	}

	m := &Manifest{Root: abs, IsDir: info.IsDir()}
	if !m.IsDir {
		m.Files = []File{{RelPath: filepath.Base(abs), AbsPath: abs, Length: info.Size()}}
		m.TotalLength = info.Size()
	} else {
		if err := m.scanTree(abs); err != nil {
			return nil, err
		}
	}

	if m.TotalLength <= 0 {
		return nil, joberr.Wrap(joberr.ErrConfig, "manifest", "scan", "content is empty: "+abs, nil)
	}
	return m, nil
}

func (m *Manifest) scanTree(root string) error {
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		m.Files = append(m.Files, File{
			RelPath: filepath.ToSlash(rel),
			AbsPath: path,
			Length:  info.Size(),
		})
		m.TotalLength += info.Size()
		return nil
	})
	if err != nil {
		return joberr.Wrap(joberr.ErrContent, "manifest", "scan", root, err)
	}

	// Byte order of the relative path is the single deterministic
	// concatenation order; WalkDir order is close but not contractual.
	sort.Slice(m.Files, func(i, j int) bool {
		return strings.Compare(m.Files[i].RelPath, m.Files[j].RelPath) < 0
	})
	return nil
}

// PieceCount returns ceil(TotalLength / pieceLength).
func (m *Manifest) PieceCount(pieceLength int64) int {
	if pieceLength <= 0 {
		return 0
	}
	return int(ceilDiv(m.TotalLength, pieceLength))
}

// PieceRange maps a piece index onto the file segments that back it. The
// final piece may be shorter than pieceLength; every other piece is exact.
func (m *Manifest) PieceRange(index int, pieceLength int64) ([]Segment, error) {
	if pieceLength <= 0 {
		return nil, joberr.Wrap(joberr.ErrConfig, "manifest", "piece range",
			fmt.Sprintf("piece length must be positive, got %d", pieceLength), nil)
	}
	count := m.PieceCount(pieceLength)
	if index < 0 || index >= count {
		return nil, joberr.Wrap(joberr.ErrConfig, "manifest", "piece range",
			fmt.Sprintf("piece index %d out of range [0,%d)", index, count), nil)
	}

	start := int64(index) * pieceLength
	remaining := pieceLength
	if rest := m.TotalLength - start; rest < remaining {
		remaining = rest
	}

	var segments []Segment
	var fileStart int64
	for _, file := range m.Files {
		if remaining == 0 {
			break
		}
		fileEnd := fileStart + file.Length
		if fileEnd <= start || file.Length == 0 {
			fileStart = fileEnd
			continue
		}
		offset := int64(0)
		if start > fileStart {
			offset = start - fileStart
		}
		length := file.Length - offset
		if length > remaining {
			length = remaining
		}
		segments = append(segments, Segment{Path: file.AbsPath, Offset: offset, Length: length})
		start += length
		remaining -= length
		fileStart = fileEnd
	}

	if remaining != 0 {
		return nil, joberr.Wrap(joberr.ErrContent, "manifest", "piece range",
			fmt.Sprintf("piece %d extends past mapped content", index), nil)
	}
	return segments, nil
}

// ReadPiece reads the bytes of one piece. It opens files per call and holds
// no shared mutable state, so independent workers may read different
// indices concurrently. A missing, shrunken, or unreadable file is a
// content error; there is no silent truncation.
func (m *Manifest) ReadPiece(index int, pieceLength int64) ([]byte, error) {
	segments, err := m.PieceRange(index, pieceLength)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, segment := range segments {
		total += segment.Length
	}
	buf := make([]byte, total)

	var filled int64
	for _, segment := range segments {
		if err := readSegment(segment, buf[filled:filled+segment.Length]); err != nil {
			return nil, joberr.Wrap(joberr.ErrContent, "manifest", "read piece",
				fmt.Sprintf("piece %d: %s", index, segment.Path), err)
		}
		filled += segment.Length
	}
	return buf, nil
}

func readSegment(segment Segment, dst []byte) error {
	file, err := os.Open(segment.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := io.NewSectionReader(file, segment.Offset, segment.Length)
	if _, err := io.ReadFull(reader, dst); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("file shrank below recorded length: %w", err)
		}
		return err
	}
	return nil
}

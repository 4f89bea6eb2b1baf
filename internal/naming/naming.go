// Package naming derives the default descriptor label from a content
// source.
package naming

import (
	"os"
	"path/filepath"
	"strings"

	"mediapack/internal/joberr"
)

// Derive returns the descriptor label for a source path. An explicit
// override wins verbatim. A directory labels itself by base name; a single
// file labels itself by its parent directory's base name, because releases
// are conventionally delivered inside a descriptively named folder. The
// result is human-readable and deliberately un-sanitized; output-path
// sanitization belongs to the organizer.
func Derive(source, override string) (string, error) {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return override, nil
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return "", joberr.Wrap(joberr.ErrContent, "naming", "derive", source, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", joberr.Wrap(joberr.ErrContent, "naming", "derive", abs, err)
	}

	if info.IsDir() {
		return filepath.Base(abs), nil
	}

	parent := filepath.Dir(abs)
	base := filepath.Base(parent)
	if base == string(filepath.Separator) || base == "." {
		// File sitting at the filesystem root: fall back to its stem.
		stem := filepath.Base(abs)
		if ext := filepath.Ext(stem); ext != "" {
			stem = strings.TrimSuffix(stem, ext)
		}
		return stem, nil
	}
	return base, nil
}

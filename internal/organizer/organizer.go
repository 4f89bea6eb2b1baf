// Package organizer maps descriptor labels to filesystem output paths.
package organizer

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DescriptorExt is the extension appended to every output path.
const DescriptorExt = ".torrent"

// reserved characters that cannot appear in a file name across the
// filesystems we target. Path separators are included so a label can
// never escape the output directory.
const reservedChars = `/\:*?"<>|`

// OutputPath returns the destination for a descriptor with the given
// label: the sanitized label plus the descriptor extension, under dir.
func OutputPath(dir, label string) string {
	return filepath.Join(dir, SanitizeLabel(label)+DescriptorExt)
}

// SanitizeLabel makes a label safe to use as a single file name.
// Reserved characters become " - ", runs of whitespace collapse to one
// space, and leading or trailing dots and spaces are trimmed. An empty
// result falls back to "package".
func SanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case strings.ContainsRune(reservedChars, r):
			b.WriteString(" - ")
		case unicode.IsControl(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.Join(strings.Fields(b.String()), " ")
	clean = strings.Trim(clean, ". ")
	if clean == "" {
		return "package"
	}
	return clean
}

// TitleCase returns a display form of the label with each word
// capitalized. Output paths never use this; it exists for listings.
func TitleCase(label string) string {
	return cases.Title(language.Und).String(SanitizeLabel(label))
}

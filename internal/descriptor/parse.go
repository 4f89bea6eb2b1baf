package descriptor

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"mediapack/internal/hashing"
	"mediapack/internal/joberr"
)

// Parse decodes a serialized descriptor back into its field form. It is
// the inverse of Encode for descriptors this package produced, and accepts
// any well-formed metainfo document.
func Parse(data []byte) (*Descriptor, error) {
	p := &parser{data: data}
	value, err := p.parseValue()
	if err != nil {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "malformed document", err)
	}
	if p.pos != len(data) {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "trailing bytes after document", nil)
	}
	root, ok := value.(map[string]any)
	if !ok {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "document is not a dictionary", nil)
	}
	info, ok := root["info"].(map[string]any)
	if !ok {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "missing info dictionary", nil)
	}

	d := &Descriptor{Algorithm: hashing.SHA1}
	if algo, ok := stringField(info, "digest algorithm"); ok {
		parsed, err := hashing.ParseAlgorithm(algo)
		if err != nil {
			return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "", err)
		}
		d.Algorithm = parsed
	}

	name, ok := stringField(info, "name")
	if !ok {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "missing name", nil)
	}
	d.Name = name

	pieceLength, ok := info["piece length"].(int64)
	if !ok || pieceLength <= 0 {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "missing or invalid piece length", nil)
	}
	d.PieceLength = pieceLength

	pieces, ok := stringField(info, "pieces")
	if !ok {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "missing pieces", nil)
	}
	width := d.Algorithm.DigestSize()
	if len(pieces)%width != 0 {
		return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse",
			fmt.Sprintf("pieces length %d is not a multiple of digest width %d", len(pieces), width), nil)
	}
	for offset := 0; offset < len(pieces); offset += width {
		d.Digests = append(d.Digests, []byte(pieces[offset:offset+width]))
	}

	if length, ok := info["length"].(int64); ok {
		d.SingleFile = true
		d.TotalLength = length
		d.Files = []FileEntry{{Path: []string{name}, Length: length}}
	} else {
		rawFiles, ok := info["files"].([]any)
		if !ok {
			return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "missing length and files", nil)
		}
		for _, raw := range rawFiles {
			entry, ok := raw.(map[string]any)
			if !ok {
				return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "malformed file entry", nil)
			}
			length, _ := entry["length"].(int64)
			rawPath, _ := entry["path"].([]any)
			path := make([]string, 0, len(rawPath))
			for _, component := range rawPath {
				text, ok := component.(string)
				if !ok {
					return nil, joberr.Wrap(joberr.ErrConfig, "descriptor", "parse", "malformed file path", nil)
				}
				path = append(path, text)
			}
			d.Files = append(d.Files, FileEntry{Path: path, Length: length})
			d.TotalLength += length
		}
	}

	if private, ok := info["private"].(int64); ok && private == 1 {
		d.Private = true
	}
	if announce, ok := stringField(root, "announce"); ok {
		d.Trackers = append(d.Trackers, announce)
	}
	if tiers, ok := root["announce-list"].([]any); ok {
		d.Trackers = d.Trackers[:0]
		for _, tier := range tiers {
			entries, _ := tier.([]any)
			for _, entry := range entries {
				if tracker, ok := entry.(string); ok {
					d.Trackers = append(d.Trackers, tracker)
				}
			}
		}
	}
	if comment, ok := stringField(root, "comment"); ok {
		d.Comment = comment
	}
	if createdBy, ok := stringField(root, "created by"); ok {
		d.CreatedBy = createdBy
	}
	if creationDate, ok := root["creation date"].(int64); ok {
		d.CreatedAt = time.Unix(creationDate, 0).UTC()
	}

	return d, nil
}

// InfoHash returns the hex SHA-1 of the raw info dictionary bytes, the
// descriptor's own content identifier. It is always SHA-1 regardless of
// the piece digest algorithm, matching the metainfo convention.
func InfoHash(data []byte) (string, error) {
	p := &parser{data: data, trackInfo: true}
	if _, err := p.parseValue(); err != nil {
		return "", joberr.Wrap(joberr.ErrConfig, "descriptor", "info hash", "malformed document", err)
	}
	if p.infoStart == 0 && p.infoEnd == 0 {
		return "", joberr.Wrap(joberr.ErrConfig, "descriptor", "info hash", "missing info dictionary", nil)
	}
	sum := sha1.Sum(data[p.infoStart:p.infoEnd])
	return hex.EncodeToString(sum[:]), nil
}

func stringField(dict map[string]any, key string) (string, bool) {
	value, ok := dict[key].(string)
	return value, ok
}

type parser struct {
	data []byte
	pos  int

	trackInfo bool
	depth     int
	infoStart int
	infoEnd   int
}

func (p *parser) parseValue() (any, error) {
	if p.pos >= len(p.data) {
		return nil, fmt.Errorf("unexpected end of input at %d", p.pos)
	}
	switch c := p.data[p.pos]; {
	case c == 'i':
		return p.parseInt()
	case c == 'l':
		return p.parseList()
	case c == 'd':
		return p.parseDict()
	case c >= '0' && c <= '9':
		return p.parseString()
	default:
		return nil, fmt.Errorf("unexpected byte %q at %d", c, p.pos)
	}
}

func (p *parser) parseInt() (int64, error) {
	p.pos++ // 'i'
	end := p.pos
	for end < len(p.data) && p.data[end] != 'e' {
		end++
	}
	if end >= len(p.data) {
		return 0, fmt.Errorf("unterminated integer at %d", p.pos)
	}
	text := string(p.data[p.pos:end])
	if text == "" || text == "-" {
		return 0, fmt.Errorf("empty integer at %d", p.pos)
	}
	var value int64
	var negative bool
	for i, r := range text {
		if i == 0 && r == '-' {
			negative = true
			continue
		}
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid integer %q", text)
		}
		value = value*10 + int64(r-'0')
	}
	if negative {
		value = -value
	}
	p.pos = end + 1
	return value, nil
}

func (p *parser) parseString() (string, error) {
	colon := p.pos
	for colon < len(p.data) && p.data[colon] != ':' {
		colon++
	}
	if colon >= len(p.data) {
		return "", fmt.Errorf("unterminated string length at %d", p.pos)
	}
	var length int
	for _, c := range p.data[p.pos:colon] {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid string length at %d", p.pos)
		}
		length = length*10 + int(c-'0')
	}
	start := colon + 1
	if start+length > len(p.data) {
		return "", fmt.Errorf("string at %d overruns input", p.pos)
	}
	p.pos = start + length
	return string(p.data[start : start+length]), nil
}

func (p *parser) parseList() ([]any, error) {
	p.pos++ // 'l'
	list := []any{}
	for {
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("unterminated list")
		}
		if p.data[p.pos] == 'e' {
			p.pos++
			return list, nil
		}
		item, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
}

func (p *parser) parseDict() (map[string]any, error) {
	p.pos++ // 'd'
	p.depth++
	defer func() { p.depth-- }()

	dict := map[string]any{}
	lastKey := ""
	for {
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if p.data[p.pos] == 'e' {
			p.pos++
			return dict, nil
		}
		key, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if strings.Compare(key, lastKey) < 0 {
			return nil, fmt.Errorf("dictionary keys out of order: %q after %q", key, lastKey)
		}
		lastKey = key

		capture := p.trackInfo && p.depth == 1 && key == "info"
		start := p.pos
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if capture {
			p.infoStart = start
			p.infoEnd = p.pos
		}
		dict[key] = value
	}
}

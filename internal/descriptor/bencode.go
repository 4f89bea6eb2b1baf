package descriptor

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"mediapack/internal/hashing"
)

// Bencode value mapping: int64, string (byte string), []any (list), and
// map[string]any (dict, emitted with sorted keys). Sorted keys make the
// encoding canonical, which is what guarantees byte-for-byte determinism.

// Encode serializes a descriptor to its bencoded wire form.
func Encode(d *Descriptor) []byte {
	info := map[string]any{
		"name":         d.Name,
		"piece length": d.PieceLength,
		"pieces":       string(joinDigests(d.Digests)),
	}
	if d.SingleFile {
		info["length"] = d.TotalLength
	} else {
		files := make([]any, len(d.Files))
		for i, file := range d.Files {
			path := make([]any, len(file.Path))
			for j, component := range file.Path {
				path[j] = component
			}
			files[i] = map[string]any{"length": file.Length, "path": path}
		}
		info["files"] = files
	}
	if d.Private {
		info["private"] = int64(1)
	}
	if d.Algorithm != "" && d.Algorithm != hashing.SHA1 {
		info["digest algorithm"] = string(d.Algorithm)
	}

	root := map[string]any{"info": info}
	if len(d.Trackers) > 0 {
		root["announce"] = d.Trackers[0]
	}
	if len(d.Trackers) > 1 {
		tiers := make([]any, len(d.Trackers))
		for i, tracker := range d.Trackers {
			tiers[i] = []any{tracker}
		}
		root["announce-list"] = tiers
	}
	if d.Comment != "" {
		root["comment"] = d.Comment
	}
	if d.CreatedBy != "" {
		root["created by"] = d.CreatedBy
	}
	if !d.CreatedAt.IsZero() {
		root["creation date"] = d.CreatedAt.Unix()
	}

	var buf bytes.Buffer
	encodeValue(&buf, root)
	return buf.Bytes()
}

func joinDigests(digests [][]byte) []byte {
	var width int
	if len(digests) > 0 {
		width = len(digests[0])
	}
	joined := make([]byte, 0, len(digests)*width)
	for _, digest := range digests {
		joined = append(joined, digest...)
	}
	return joined
}

func encodeValue(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case int64:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v, 10))
		buf.WriteByte('e')
	case int:
		encodeValue(buf, int64(v))
	case string:
		buf.WriteString(strconv.Itoa(len(v)))
		buf.WriteByte(':')
		buf.WriteString(v)
	case []byte:
		buf.WriteString(strconv.Itoa(len(v)))
		buf.WriteByte(':')
		buf.Write(v)
	case []any:
		buf.WriteByte('l')
		for _, item := range v {
			encodeValue(buf, item)
		}
		buf.WriteByte('e')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buf.WriteByte('d')
		for _, key := range keys {
			encodeValue(buf, key)
			encodeValue(buf, v[key])
		}
		buf.WriteByte('e')
	default:
		panic(fmt.Sprintf("bencode: unsupported type %T", value))
	}
}

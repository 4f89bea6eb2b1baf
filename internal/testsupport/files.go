// Package testsupport provides helpers for building temporary content
// sources and configurations in tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mediapack/internal/config"
)

// WriteFile fills the target path with size bytes of a position-dependent
// pattern so that distinct offsets hash to distinct digests. A size <= 0
// writes an empty file.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)

	var written int64
	for written < size {
		toWrite := int64(chunkSize)
		if size-written < toWrite {
			toWrite = size - written
		}
		for i := int64(0); i < toWrite; i++ {
			buf[i] = byte((written + i) * 131)
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		written += toWrite
	}
}

// ContentTree creates a directory under the test temp dir populated with
// the named files (relative path -> size) and returns its root.
func ContentTree(t testing.TB, name string, files map[string]int64) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", root, err)
	}
	for rel, size := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), size)
	}
	return root
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(base, "out")
	cfg.Batch.HistoryDB = filepath.Join(base, "history", "jobs.db")
	cfg.Hashing.MaxWorkers = 2

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

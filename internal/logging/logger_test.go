package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("construct logger: %v", err)
	}

	logger = NewComponentLogger(logger, "hashing")
	logger.Info("piece complete", Int(FieldPieceIndex, 7), String("path", "a b"))

	line := buf.String()
	if !strings.Contains(line, " INFO hashing: piece complete") {
		t.Fatalf("unexpected console line %q", line)
	}
	if !strings.Contains(line, "piece_index=7") {
		t.Fatalf("expected piece_index attr in %q", line)
	}
	if !strings.Contains(line, `path="a b"`) {
		t.Fatalf("expected quoted path attr in %q", line)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("construct logger: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("visible")

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info line should have been suppressed: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestJSONHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("construct logger: %v", err)
	}

	logger.Info("job queued", String(FieldJobID, "abc"))

	line := buf.String()
	for _, fragment := range []string{`"ts":`, `"level":"info"`, `"msg":"job queued"`, `"job_id":"abc"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %s in %q", fragment, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("nothing happens", Error(nil))
}

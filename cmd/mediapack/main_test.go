package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mediapack/internal/testsupport"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeTestConfig(t *testing.T) (configPath, outputDir string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"
	cfg.Logging.Format = "json"

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	configPath = filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, cfg.Output.Dir
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	output, err := executeCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, output)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := executeCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	if output, err := executeCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v\n%s", err, output)
	}
}

func TestCreateAndInspectCommands(t *testing.T) {
	configPath, outputDir := writeTestConfig(t)
	source := testsupport.ContentTree(t, "Title (2020)", map[string]int64{
		"video.mkv": 50_000,
		"extra.srt": 1_000,
	})

	output, err := executeCommand(t, "-c", configPath, "create", source, "--comment", "from test")
	if err != nil {
		t.Fatalf("create: %v\n%s", err, output)
	}
	descriptorPath := filepath.Join(outputDir, "Title (2020).torrent")
	if !strings.Contains(output, descriptorPath) {
		t.Fatalf("create output missing descriptor path:\n%s", output)
	}
	if _, err := os.Stat(descriptorPath); err != nil {
		t.Fatalf("descriptor not written: %v", err)
	}

	output, err = executeCommand(t, "inspect", descriptorPath, "--files")
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, output)
	}
	for _, want := range []string{"Title (2020)", "info hash:", "from test", "video.mkv"} {
		if !strings.Contains(output, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, output)
		}
	}
}

func TestBatchCommandReportsSummary(t *testing.T) {
	configPath, outputDir := writeTestConfig(t)
	first := testsupport.ContentTree(t, "Alpha", map[string]int64{"a.mkv": 30_000})
	second := testsupport.ContentTree(t, "Beta", map[string]int64{"b.mkv": 30_000})

	output, err := executeCommand(t, "-c", configPath, "batch", first, second)
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, output)
	}
	if !strings.Contains(output, "completed 2, failed 0, cancelled 0") {
		t.Fatalf("summary line missing:\n%s", output)
	}
	for _, name := range []string{"Alpha", "Beta"} {
		if _, err := os.Stat(filepath.Join(outputDir, name+".torrent")); err != nil {
			t.Fatalf("descriptor for %s not written: %v", name, err)
		}
	}
}

func TestBatchCommandFailsOnBadSource(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	good := testsupport.ContentTree(t, "Good", map[string]int64{"a.mkv": 30_000})
	missing := filepath.Join(t.TempDir(), "missing")

	output, err := executeCommand(t, "-c", configPath, "batch", good, missing)
	if err == nil {
		t.Fatalf("expected batch to report failure:\n%s", output)
	}
	if !strings.Contains(output, "completed 1, failed 1, cancelled 0") {
		t.Fatalf("summary line missing:\n%s", output)
	}
}

func TestWatchCommandPackagesDroppedSource(t *testing.T) {
	configPath, outputDir := writeTestConfig(t)
	watchDir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(watchDir, "Dropzone", "a.mkv"), 30_000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"-c", configPath, "watch", watchDir, "--interval", "5ms"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	descriptorPath := filepath.Join(outputDir, "Dropzone.torrent")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(descriptorPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("descriptor never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), descriptorPath) {
		t.Fatalf("watch output missing descriptor path:\n%s", buf.String())
	}
}

func TestHistoryCommandListsJobs(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	source := testsupport.ContentTree(t, "tracked library", map[string]int64{"a.mkv": 30_000})

	if output, err := executeCommand(t, "-c", configPath, "create", source); err != nil {
		t.Fatalf("create: %v\n%s", err, output)
	}

	output, err := executeCommand(t, "-c", configPath, "history")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, output)
	}
	// The name column shows the title-cased display form.
	if !strings.Contains(output, "Tracked Library") || !strings.Contains(output, "completed") {
		t.Fatalf("history output missing job row:\n%s", output)
	}
}

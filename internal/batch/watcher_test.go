package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediapack/internal/joberr"
	"mediapack/internal/testsupport"
)

func newTestWatcher(t *testing.T, outputDir string, results func(Outcome)) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatcherOptions{
		Orchestrator: newTestOrchestrator(t, OrchestratorOptions{}),
		Interval:     2 * time.Millisecond,
		JobFor: func(source string) (Job, error) {
			job := NewJob(source)
			job.OutputDir = outputDir
			return job, nil
		},
		Results: results,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	return w
}

func TestNewWatcherRequiresDependencies(t *testing.T) {
	if _, err := NewWatcher(WatcherOptions{JobFor: func(string) (Job, error) { return Job{}, nil }}); !joberr.IsConfig(err) {
		t.Fatalf("expected config error without orchestrator, got %v", err)
	}
	o := newTestOrchestrator(t, OrchestratorOptions{})
	if _, err := NewWatcher(WatcherOptions{Orchestrator: o}); !joberr.IsConfig(err) {
		t.Fatalf("expected config error without job builder, got %v", err)
	}
}

func TestWatchRejectsMissingDirectory(t *testing.T) {
	w := newTestWatcher(t, t.TempDir(), nil)
	if err := w.Watch(context.Background(), filepath.Join(t.TempDir(), "missing")); !joberr.IsContent(err) {
		t.Fatalf("expected content error, got %v", err)
	}
}

func TestWatchSubmitsSettledSource(t *testing.T) {
	watchDir := t.TempDir()
	outputDir := t.TempDir()
	outcomes := make(chan Outcome, 1)
	w := newTestWatcher(t, outputDir, func(outcome Outcome) { outcomes <- outcome })

	root := filepath.Join(watchDir, "Dropped (2024)")
	testsupport.WriteFile(t, filepath.Join(root, "video.mkv"), 60_000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, watchDir) }()

	var outcome Outcome
	select {
	case outcome = <-outcomes:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never submitted the settled source")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned error: %v", err)
	}

	if outcome.Status != StatusCompleted || outcome.Err != nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.Name != "Dropped (2024)" {
		t.Fatalf("derived name wrong: %q", outcome.Name)
	}
	if _, err := os.Stat(outcome.DescriptorPath); err != nil {
		t.Fatalf("descriptor not written: %v", err)
	}
}

func TestPollHoldsGrowingSourceUntilStable(t *testing.T) {
	watchDir := t.TempDir()
	outputDir := t.TempDir()
	w := newTestWatcher(t, outputDir, nil)

	target := filepath.Join(watchDir, "Incoming", "video.mkv")
	testsupport.WriteFile(t, target, 20_000)

	sizes := make(map[string]int64)
	submitted := make(map[string]bool)
	var wg sync.WaitGroup
	ctx := context.Background()

	w.poll(ctx, watchDir, sizes, submitted, &wg)
	if submitted["Incoming"] {
		t.Fatal("first observation must not submit")
	}

	// Still being copied in: the size changes, so the settle check resets.
	testsupport.WriteFile(t, target, 40_000)
	w.poll(ctx, watchDir, sizes, submitted, &wg)
	if submitted["Incoming"] {
		t.Fatal("growing source must not submit")
	}

	w.poll(ctx, watchDir, sizes, submitted, &wg)
	if !submitted["Incoming"] {
		t.Fatal("stable source was not submitted")
	}
	w.poll(ctx, watchDir, sizes, submitted, &wg)
	wg.Wait()

	if _, err := os.Stat(filepath.Join(outputDir, "Incoming.torrent")); err != nil {
		t.Fatalf("descriptor not written: %v", err)
	}
}

func TestPollSkipsHiddenAndDescriptorEntries(t *testing.T) {
	watchDir := t.TempDir()
	w := newTestWatcher(t, t.TempDir(), nil)

	testsupport.WriteFile(t, filepath.Join(watchDir, ".partial"), 1_000)
	testsupport.WriteFile(t, filepath.Join(watchDir, "Done.torrent"), 1_000)

	sizes := make(map[string]int64)
	submitted := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		w.poll(context.Background(), watchDir, sizes, submitted, &wg)
	}
	wg.Wait()

	if len(submitted) != 0 || len(sizes) != 0 {
		t.Fatalf("ignored entries were tracked: submitted=%v sizes=%v", submitted, sizes)
	}
}

func TestPollSubmitsEachSourceOnce(t *testing.T) {
	watchDir := t.TempDir()
	outputDir := t.TempDir()

	var mu sync.Mutex
	seen := make(map[string]int)
	w := newTestWatcher(t, outputDir, func(outcome Outcome) {
		mu.Lock()
		seen[outcome.Source]++
		mu.Unlock()
	})

	testsupport.WriteFile(t, filepath.Join(watchDir, "Solo", "video.mkv"), 30_000)

	sizes := make(map[string]int64)
	submitted := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		w.poll(context.Background(), watchDir, sizes, submitted, &wg)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := seen[filepath.Join(watchDir, "Solo")]; got != 1 {
		t.Fatalf("expected exactly one submission, got %d", got)
	}
}

func TestTreeSizeTotalsRegularFiles(t *testing.T) {
	root := testsupport.ContentTree(t, "Sized", map[string]int64{
		"a.mkv":     10_000,
		"sub/b.srt": 500,
	})
	size, err := treeSize(root)
	if err != nil {
		t.Fatalf("tree size: %v", err)
	}
	if size != 10_500 {
		t.Fatalf("expected 10500 bytes, got %d", size)
	}

	single := filepath.Join(t.TempDir(), "single.bin")
	testsupport.WriteFile(t, single, 777)
	size, err = treeSize(single)
	if err != nil {
		t.Fatalf("tree size: %v", err)
	}
	if size != 777 {
		t.Fatalf("expected 777 bytes, got %d", size)
	}
}

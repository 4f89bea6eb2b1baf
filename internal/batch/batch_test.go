package batch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediapack/internal/budget"
	"mediapack/internal/descriptor"
	"mediapack/internal/hashing"
	"mediapack/internal/joberr"
	"mediapack/internal/jobstore"
	"mediapack/internal/sysmon"
	"mediapack/internal/testsupport"
)

type stubMonitor struct{}

func (stubMonitor) Sample() sysmon.Sample {
	return sysmon.Sample{When: time.Now(), Cores: 4, Utilization: 10}
}

func newTestOrchestrator(t *testing.T, opts OrchestratorOptions) *Orchestrator {
	t.Helper()
	controller := budget.New(budget.Config{MaxWorkers: 2}, stubMonitor{})
	t.Cleanup(controller.Close)
	opts.Pipeline = hashing.New(hashing.Options{
		Controller: controller,
		Monitor:    stubMonitor{},
		Algorithm:  hashing.SHA1,
	})
	o, err := NewOrchestrator(opts)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func contentJob(t *testing.T, name string, outputDir string) Job {
	t.Helper()
	root := testsupport.ContentTree(t, name, map[string]int64{
		"video.mkv": 60_000,
		"info.nfo":  2_000,
	})
	job := NewJob(root)
	job.OutputDir = outputDir
	return job
}

func TestNewJobAssignsUniqueIDs(t *testing.T) {
	a, b := NewJob("/content/a"), NewJob("/content/b")
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestRunBatchCompletesJobs(t *testing.T) {
	outputDir := t.TempDir()
	o := newTestOrchestrator(t, OrchestratorOptions{JobParallelism: 2})

	jobs := []Job{
		contentJob(t, "Alpha (2020)", outputDir),
		contentJob(t, "Beta (2021)", outputDir),
	}
	result, err := o.RunBatch(context.Background(), jobs)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Summary != (Summary{Completed: 2}) {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
	for i, outcome := range result.Outcomes {
		if outcome.JobID != jobs[i].ID {
			t.Fatalf("outcome %d out of order: %q != %q", i, outcome.JobID, jobs[i].ID)
		}
		if outcome.Status != StatusCompleted || outcome.Err != nil {
			t.Fatalf("outcome %d not completed: %+v", i, outcome)
		}
		data, err := os.ReadFile(outcome.DescriptorPath)
		if err != nil {
			t.Fatalf("read descriptor: %v", err)
		}
		parsed, err := descriptor.Parse(data)
		if err != nil {
			t.Fatalf("parse descriptor: %v", err)
		}
		if parsed.Name != outcome.Name || parsed.TotalLength != outcome.TotalBytes {
			t.Fatalf("descriptor disagrees with outcome: %+v vs %+v", parsed, outcome)
		}
		hash, err := descriptor.InfoHash(data)
		if err != nil {
			t.Fatalf("info hash: %v", err)
		}
		if hash != outcome.InfoHash {
			t.Fatalf("info hash mismatch: %q != %q", hash, outcome.InfoHash)
		}
	}
	if result.Outcomes[0].Name != "Alpha (2020)" {
		t.Fatalf("derived name wrong: %q", result.Outcomes[0].Name)
	}
}

func TestRunBatchIsolatesJobFailure(t *testing.T) {
	outputDir := t.TempDir()
	o := newTestOrchestrator(t, OrchestratorOptions{JobParallelism: 1})

	broken := NewJob(filepath.Join(t.TempDir(), "missing"))
	broken.OutputDir = outputDir
	jobs := []Job{
		contentJob(t, "One", outputDir),
		contentJob(t, "Two", outputDir),
		broken,
		contentJob(t, "Four", outputDir),
		contentJob(t, "Five", outputDir),
	}

	result, err := o.RunBatch(context.Background(), jobs)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if len(result.Outcomes) != len(jobs) {
		t.Fatalf("expected %d outcomes, got %d", len(jobs), len(result.Outcomes))
	}
	if result.Summary.Completed != 4 || result.Summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
	if result.Outcomes[2].Status != StatusFailed || !joberr.IsContent(result.Outcomes[2].Err) {
		t.Fatalf("broken job outcome wrong: %+v", result.Outcomes[2])
	}
	for _, i := range []int{0, 1, 3, 4} {
		if result.Outcomes[i].JobID != jobs[i].ID || result.Outcomes[i].Status != StatusCompleted {
			t.Fatalf("job %d affected by the failure: %+v", i, result.Outcomes[i])
		}
	}
}

func TestRunBatchRejectsEmptyJobList(t *testing.T) {
	o := newTestOrchestrator(t, OrchestratorOptions{})
	if _, err := o.RunBatch(context.Background(), nil); !joberr.IsConfig(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRunBatchRespectsOverwritePolicy(t *testing.T) {
	outputDir := t.TempDir()
	job := contentJob(t, "Alpha", outputDir)

	o := newTestOrchestrator(t, OrchestratorOptions{})
	if _, err := o.RunBatch(context.Background(), []Job{job}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	rerun := NewJob(job.Source)
	rerun.OutputDir = outputDir
	result, err := o.RunBatch(context.Background(), []Job{rerun})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Outcomes[0].Status != StatusFailed || !joberr.IsConfig(result.Outcomes[0].Err) {
		t.Fatalf("expected overwrite refusal, got %+v", result.Outcomes[0])
	}

	allowed := newTestOrchestrator(t, OrchestratorOptions{OverwriteExisting: true})
	third := NewJob(job.Source)
	third.OutputDir = outputDir
	result, err = allowed.RunBatch(context.Background(), []Job{third})
	if err != nil {
		t.Fatalf("overwriting run: %v", err)
	}
	if result.Outcomes[0].Status != StatusCompleted {
		t.Fatalf("overwrite-enabled run failed: %+v", result.Outcomes[0])
	}
}

func TestRunBatchWithPinnedTimeIsByteDeterministic(t *testing.T) {
	outputDir := t.TempDir()
	o := newTestOrchestrator(t, OrchestratorOptions{OverwriteExisting: true})

	source := testsupport.ContentTree(t, "Repeatable", map[string]int64{
		"video.mkv": 90_000,
		"sub/a.srt": 3_000,
	})
	pinned := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	read := func() []byte {
		job := NewJob(source)
		job.OutputDir = outputDir
		job.Options.Comment = "pinned"
		job.Options.CreatedAt = pinned
		result, err := o.RunBatch(context.Background(), []Job{job})
		if err != nil {
			t.Fatalf("run batch: %v", err)
		}
		if result.Outcomes[0].Status != StatusCompleted {
			t.Fatalf("job failed: %+v", result.Outcomes[0])
		}
		data, err := os.ReadFile(result.Outcomes[0].DescriptorPath)
		if err != nil {
			t.Fatalf("read descriptor: %v", err)
		}
		return data
	}

	first := read()
	second := read()
	if !bytes.Equal(first, second) {
		t.Fatal("repeated runs over identical content produced different bytes")
	}
}

func TestRunBatchPersistsHistory(t *testing.T) {
	store, err := jobstore.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	outputDir := t.TempDir()
	o := newTestOrchestrator(t, OrchestratorOptions{History: store})

	job := contentJob(t, "Tracked", outputDir)
	if _, err := o.RunBatch(context.Background(), []Job{job}); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	records, err := store.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if rec.JobID != job.ID || rec.Status != string(StatusCompleted) {
		t.Fatalf("record wrong: %+v", rec)
	}
	if rec.InfoHash == "" || rec.PieceCount == 0 || rec.DescriptorPath == "" {
		t.Fatalf("outcome fields not persisted: %+v", rec)
	}
}

func TestSubmitCancelProducesCancelledOutcome(t *testing.T) {
	outputDir := t.TempDir()
	root := testsupport.ContentTree(t, "Long", map[string]int64{
		"video.mkv": 512_000,
	})
	job := NewJob(root)
	job.OutputDir = outputDir
	job.Options.PieceLength = 16_384

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := newTestOrchestrator(t, OrchestratorOptions{
		Progress: func(jobID string, completed, total int) {
			if completed == 2 {
				cancel()
			}
		},
	})
	outcome := o.Submit(ctx, job).Wait()

	if outcome.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %+v", outcome)
	}
	if outcome.DescriptorPath != "" {
		t.Fatal("cancelled job must not report an output path")
	}
	if _, err := os.Stat(filepath.Join(outputDir, "Long.torrent")); !os.IsNotExist(err) {
		t.Fatal("cancelled job must not write a descriptor")
	}
}

func TestProgressEventsCarryJobID(t *testing.T) {
	outputDir := t.TempDir()
	job := contentJob(t, "Progress", outputDir)

	var (
		sawJob string
		last   int
	)
	o := newTestOrchestrator(t, OrchestratorOptions{
		Progress: func(jobID string, completed, total int) {
			sawJob = jobID
			if completed <= last {
				t.Errorf("progress went backwards: %d after %d", completed, last)
			}
			last = completed
		},
	})
	result, err := o.RunBatch(context.Background(), []Job{job})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Outcomes[0].Status != StatusCompleted {
		t.Fatalf("job failed: %+v", result.Outcomes[0])
	}
	if sawJob != job.ID {
		t.Fatalf("progress events carried %q, want %q", sawJob, job.ID)
	}
	if last != result.Outcomes[0].PieceCount {
		t.Fatalf("final progress %d != piece count %d", last, result.Outcomes[0].PieceCount)
	}
}

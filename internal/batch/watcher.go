package batch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mediapack/internal/joberr"
	"mediapack/internal/logging"
	"mediapack/internal/organizer"
)

// DefaultWatchInterval is the polling period used when none is configured.
const DefaultWatchInterval = 5 * time.Second

// WatcherOptions configures a directory watcher.
type WatcherOptions struct {
	Orchestrator *Orchestrator
	Logger       *slog.Logger

	// Interval is the polling period. Zero selects DefaultWatchInterval.
	Interval time.Duration

	// JobFor builds the job submitted for a settled source. Required.
	JobFor func(source string) (Job, error)

	// Results receives each terminal outcome. Nil disables delivery.
	// Callbacks may arrive concurrently when jobs finish together.
	Results func(Outcome)
}

// Watcher polls a drop directory and submits each new entry once its
// size has stopped changing. An entry still being copied in grows
// between polls and stays pending until two consecutive polls agree.
type Watcher struct {
	orchestrator *Orchestrator
	logger       *slog.Logger
	interval     time.Duration
	jobFor       func(source string) (Job, error)
	results      func(Outcome)
}

// NewWatcher validates dependencies and builds a watcher.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Orchestrator == nil {
		return nil, joberr.Wrap(joberr.ErrConfig, "watch", "new", "orchestrator is required", nil)
	}
	if opts.JobFor == nil {
		return nil, joberr.Wrap(joberr.ErrConfig, "watch", "new", "job builder is required", nil)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		orchestrator: opts.Orchestrator,
		logger:       logging.NewComponentLogger(logger, "watch"),
		interval:     interval,
		jobFor:       opts.JobFor,
		results:      opts.Results,
	}, nil
}

// Watch polls dir until ctx is done, submitting each settled entry
// exactly once. Entries already present at startup are submitted after
// the first settle confirmation like any other. Returns after every
// in-flight job has reached a terminal outcome.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return joberr.Wrap(joberr.ErrContent, "watch", "open", "stat watch directory", err)
	}
	if !info.IsDir() {
		return joberr.Wrap(joberr.ErrConfig, "watch", "open", dir+" is not a directory", nil)
	}

	w.logger.Info("watching directory",
		logging.String("dir", dir),
		logging.Duration("interval", w.interval),
	)

	sizes := make(map[string]int64)
	submitted := make(map[string]bool)
	var wg sync.WaitGroup

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.poll(ctx, dir, sizes, submitted, &wg)
		select {
		case <-ctx.Done():
			wg.Wait()
			w.logger.Info("watch stopped", logging.Int("jobs", len(submitted)))
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) poll(ctx context.Context, dir string, sizes map[string]int64, submitted map[string]bool, wg *sync.WaitGroup) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("watch poll failed", logging.Error(err))
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if skipWatchEntry(name) || submitted[name] {
			continue
		}
		path := filepath.Join(dir, name)
		size, err := treeSize(path)
		if err != nil {
			// The entry may have been removed mid-poll; drop any
			// pending observation and try again next round.
			delete(sizes, name)
			continue
		}
		if last, seen := sizes[name]; !seen || last != size {
			sizes[name] = size
			continue
		}
		delete(sizes, name)
		submitted[name] = true
		w.submit(ctx, path, wg)
	}
}

func (w *Watcher) submit(ctx context.Context, source string, wg *sync.WaitGroup) {
	job, err := w.jobFor(source)
	if err != nil {
		w.logger.Error("watch job rejected",
			logging.String(logging.FieldSource, source),
			logging.Error(err),
		)
		return
	}
	w.logger.Info("source settled, submitting",
		logging.String(logging.FieldSource, source),
		logging.String(logging.FieldJobID, job.ID),
	)
	handle := w.orchestrator.Submit(ctx, job)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome := handle.Wait()
		if w.results != nil {
			w.results(outcome)
		}
	}()
}

// skipWatchEntry filters hidden files and our own output.
func skipWatchEntry(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, organizer.DescriptorExt)
}

// treeSize totals the regular-file bytes under path. A plain file
// reports its own length.
func treeSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"mediapack/internal/descriptor"
	"mediapack/internal/hashing"
	"mediapack/internal/joberr"
	"mediapack/internal/jobstore"
	"mediapack/internal/logging"
	"mediapack/internal/manifest"
	"mediapack/internal/naming"
	"mediapack/internal/organizer"
)

// History persists job lifecycle events. *jobstore.Store satisfies it.
type History interface {
	RecordStart(ctx context.Context, jobID, source, status string) error
	UpdateStatus(ctx context.Context, jobID, status string) error
	RecordOutcome(ctx context.Context, rec jobstore.Record) error
}

// OrchestratorOptions configures a batch orchestrator.
type OrchestratorOptions struct {
	Pipeline  *hashing.Pipeline
	Assembler descriptor.Assembler
	Logger    *slog.Logger
	History   History      // nil disables persistence
	Progress  ProgressFunc // nil disables progress events

	JobParallelism    int
	MaxPieces         int
	OverwriteExisting bool
}

// Orchestrator runs jobs through the full packaging flow.
type Orchestrator struct {
	pipeline  *hashing.Pipeline
	assembler descriptor.Assembler
	logger    *slog.Logger
	history   History
	progress  ProgressFunc

	jobParallelism int
	maxPieces      int
	overwrite      bool
}

// NewOrchestrator validates dependencies and builds an orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Pipeline == nil {
		return nil, joberr.Wrap(joberr.ErrConfig, "batch", "new", "hashing pipeline is required", nil)
	}
	assembler := opts.Assembler
	if assembler == nil {
		assembler = descriptor.NewBasic(opts.Pipeline.Algorithm())
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	jobParallelism := opts.JobParallelism
	if jobParallelism < 1 {
		jobParallelism = 1
	}
	maxPieces := opts.MaxPieces
	if maxPieces < 1 {
		maxPieces = manifest.DefaultMaxPieces
	}
	return &Orchestrator{
		pipeline:       opts.Pipeline,
		assembler:      assembler,
		logger:         logging.NewComponentLogger(logger, "batch"),
		history:        opts.History,
		progress:       opts.Progress,
		jobParallelism: jobParallelism,
		maxPieces:      maxPieces,
		overwrite:      opts.OverwriteExisting,
	}, nil
}

// RunBatch executes jobs with bounded parallelism. Job failures are
// isolated into their outcomes; the returned error covers batch-level
// problems only. Outcomes line up with the jobs slice.
func (o *Orchestrator) RunBatch(ctx context.Context, jobs []Job) (Result, error) {
	if len(jobs) == 0 {
		return Result{}, joberr.Wrap(joberr.ErrConfig, "batch", "run", "no jobs submitted", nil)
	}

	result := Result{Outcomes: make([]Outcome, len(jobs))}
	slots := make(chan struct{}, o.jobParallelism)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()
			result.Outcomes[i] = o.runJob(ctx, job)
		}(i, job)
	}
	wg.Wait()

	result.tally()
	o.logger.Info("batch finished",
		logging.Int("jobs", len(jobs)),
		logging.Int("completed", result.Summary.Completed),
		logging.Int("failed", result.Summary.Failed),
		logging.Int("cancelled", result.Summary.Cancelled),
	)
	return result, nil
}

// Handle tracks one asynchronously submitted job.
type Handle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

// Cancel requests cooperative cancellation of the job.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the job reaches a terminal status.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.outcome
}

// Submit starts a single job and returns a handle to it.
func (o *Orchestrator) Submit(ctx context.Context, job Job) *Handle {
	jobCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer cancel()
		handle.outcome = o.runJob(jobCtx, job)
		close(handle.done)
	}()
	return handle
}

func (o *Orchestrator) runJob(ctx context.Context, job Job) Outcome {
	started := time.Now()
	logger := logging.WithJob(o.logger, job.ID).With(logging.String(logging.FieldSource, job.Source))
	outcome := Outcome{JobID: job.ID, Source: job.Source}

	fail := func(err error) Outcome {
		outcome.Status = statusFor(err)
		outcome.Err = err
		outcome.Elapsed = time.Since(started)
		if outcome.Status == StatusCancelled {
			logger.Warn("job cancelled")
		} else {
			logger.Error("job failed", logging.Error(err))
		}
		o.recordOutcome(outcome)
		return outcome
	}

	o.recordStart(ctx, job)
	logger.Info("job started")

	m, err := manifest.Scan(job.Source)
	if err != nil {
		return fail(err)
	}
	name, err := naming.Derive(job.Source, job.NameOverride)
	if err != nil {
		return fail(err)
	}
	outcome.Name = name
	outcome.TotalBytes = m.TotalLength

	pieceLength := job.Options.PieceLength
	if pieceLength <= 0 {
		pieceLength, err = manifest.SelectPieceLengthWithLimit(m.TotalLength, o.maxPieces)
		if err != nil {
			return fail(err)
		}
	}
	outcome.PieceLength = pieceLength
	outcome.PieceCount = m.PieceCount(pieceLength)

	outputPath := organizer.OutputPath(job.OutputDir, name)
	if !o.overwrite {
		if _, statErr := os.Stat(outputPath); statErr == nil {
			return fail(joberr.Wrap(joberr.ErrConfig, "batch", "write descriptor",
				fmt.Sprintf("output %s already exists", outputPath), nil))
		}
	}

	o.updateStatus(ctx, job.ID, StatusHashing)
	sampler := logging.NewProgressSampler(0)
	digests, err := o.pipeline.Run(ctx, m, pieceLength, func(completed, total int) {
		if o.progress != nil {
			o.progress(job.ID, completed, total)
		}
		if sampler.ShouldLog(completed, total) {
			logger.Info("hashing progress",
				logging.Int(logging.FieldPieceIndex, completed),
				logging.Int(logging.FieldPieceCount, total),
			)
		}
	})
	if err != nil {
		return fail(err)
	}

	o.updateStatus(ctx, job.ID, StatusAssembling)
	d, err := o.assembler.Assemble(m, pieceLength, digests, name, descriptor.Options{
		Trackers:       job.Options.Trackers,
		Private:        job.Options.Private,
		Comment:        job.Options.Comment,
		CreatedBy:      job.Options.CreatedBy,
		RequireTracker: job.Options.RequireTracker,
		CreatedAt:      job.Options.CreatedAt,
	})
	if err != nil {
		return fail(err)
	}
	encoded := descriptor.Encode(d)
	infoHash, err := descriptor.InfoHash(encoded)
	if err != nil {
		return fail(err)
	}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fail(joberr.Wrap(joberr.ErrResource, "batch", "write descriptor", "create output directory", err))
	}
	if err := os.WriteFile(outputPath, encoded, 0o644); err != nil {
		return fail(joberr.Wrap(joberr.ErrResource, "batch", "write descriptor", "write output file", err))
	}

	outcome.Status = StatusCompleted
	outcome.DescriptorPath = outputPath
	outcome.InfoHash = infoHash
	outcome.Elapsed = time.Since(started)
	logger.Info("job completed",
		logging.String("output", outputPath),
		logging.Int(logging.FieldPieceCount, outcome.PieceCount),
		logging.Int64("piece_length", pieceLength),
	)
	o.recordOutcome(outcome)
	return outcome
}

// statusFor maps a terminal error to a job status. Cancellation is a
// first-class terminal state, not a failure.
func statusFor(err error) Status {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusCancelled
	}
	return StatusFailed
}

func (o *Orchestrator) recordStart(ctx context.Context, job Job) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordStart(ctx, job.ID, job.Source, string(StatusQueued)); err != nil {
		o.logger.Warn("failed to persist job start", logging.Error(err))
	}
}

func (o *Orchestrator) updateStatus(ctx context.Context, jobID string, status Status) {
	if o.history == nil {
		return
	}
	if err := o.history.UpdateStatus(ctx, jobID, string(status)); err != nil {
		o.logger.Warn("failed to persist job status", logging.Error(err))
	}
}

func (o *Orchestrator) recordOutcome(outcome Outcome) {
	if o.history == nil {
		return
	}
	rec := jobstore.Record{
		JobID:          outcome.JobID,
		Source:         outcome.Source,
		Name:           outcome.Name,
		Status:         string(outcome.Status),
		DescriptorPath: outcome.DescriptorPath,
		InfoHash:       outcome.InfoHash,
		PieceCount:     outcome.PieceCount,
		PieceLength:    outcome.PieceLength,
		TotalBytes:     outcome.TotalBytes,
		Elapsed:        outcome.Elapsed,
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}
	// Outcomes are recorded even when the run context is already done.
	if err := o.history.RecordOutcome(context.Background(), rec); err != nil {
		o.logger.Warn("failed to persist job outcome", logging.Error(err))
	}
}

// Package hashing dispatches piece reads to a bounded worker pool and
// collects digests by index, so the emitted digest sequence depends only on
// piece order, never on scheduling.
package hashing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mediapack/internal/budget"
	"mediapack/internal/logging"
	"mediapack/internal/manifest"
	"mediapack/internal/sysmon"
)

// ProgressSink receives monotonically increasing completed-piece counts.
// Implementations must be fast; the pipeline serializes calls.
type ProgressSink func(completed, total int)

// Options configures a pipeline.
type Options struct {
	Controller *budget.Controller
	Monitor    sysmon.Monitor
	Algorithm  Algorithm
	Logger     *slog.Logger

	// RebalancePieces and RebalanceInterval bound how often the pool size
	// is re-evaluated against a fresh resource sample.
	RebalancePieces   int
	RebalanceInterval time.Duration
}

// Pipeline hashes the pieces of a manifest in parallel.
type Pipeline struct {
	controller *budget.Controller
	monitor    sysmon.Monitor
	algorithm  Algorithm
	logger     *slog.Logger

	rebalancePieces   int
	rebalanceInterval time.Duration
}

// New builds a pipeline. Controller and Monitor are required.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	rebalancePieces := opts.RebalancePieces
	if rebalancePieces <= 0 {
		rebalancePieces = 256
	}
	rebalanceInterval := opts.RebalanceInterval
	if rebalanceInterval <= 0 {
		rebalanceInterval = 2 * time.Second
	}
	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = SHA1
	}
	return &Pipeline{
		controller:        opts.Controller,
		monitor:           opts.Monitor,
		algorithm:         algorithm,
		logger:            logging.NewComponentLogger(logger, "hashing"),
		rebalancePieces:   rebalancePieces,
		rebalanceInterval: rebalanceInterval,
	}
}

// Algorithm returns the digest algorithm the pipeline was built with.
func (p *Pipeline) Algorithm() Algorithm { return p.algorithm }

// run tracks the mutable state of one Run call.
type run struct {
	manifest    *manifest.Manifest
	pieceLength int64
	total       int
	digests     [][]byte
	sink        ProgressSink

	mu        sync.Mutex
	completed int
	firstErr  error

	workers       int // current pool size, guarded by mu
	targetWorkers int

	rebalance chan struct{}
	abort     context.CancelFunc
}

// Run hashes every piece of the manifest and returns the index-ordered
// digest list. Cancellation is cooperative: it is checked before each new
// piece is dispatched, in-flight pieces drain, and no partial digest list
// is ever returned. The first content error aborts remaining dispatch.
func (p *Pipeline) Run(ctx context.Context, m *manifest.Manifest, pieceLength int64, sink ProgressSink) ([][]byte, error) {
	total := m.PieceCount(pieceLength)
	if total == 0 {
		return nil, ctx.Err()
	}
	if sink == nil {
		sink = func(int, int) {}
	}

	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	state := &run{
		manifest:    m,
		pieceLength: pieceLength,
		total:       total,
		digests:     make([][]byte, total),
		sink:        sink,
		rebalance:   make(chan struct{}, 1),
		abort:       abort,
	}

	indices := make(chan int)
	var wg sync.WaitGroup

	spawn := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.controller.Release(1)
			p.worker(runCtx, state, indices)
		}()
	}

	// The pool starts with whatever share of the budget is free, but a job
	// always gets one worker eventually so contended batches still move.
	initial := p.startWorkers(runCtx, state, spawn)
	if initial == 0 {
		if err := p.controller.Acquire(runCtx, 1); err != nil {
			return nil, err
		}
		state.setWorkers(1)
		spawn()
	}

	poolDone := make(chan struct{})
	managerExited := make(chan struct{})
	go func() {
		defer close(managerExited)
		p.managePool(runCtx, state, spawn, poolDone)
	}()

	// Dispatch piece indices in order; cancellation is only observed here,
	// at the dispatch boundary.
dispatch:
	for index := 0; index < total; index++ {
		select {
		case indices <- index:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(indices)

	// The manager must be fully stopped before Wait: a late grow would
	// call Add concurrently with Wait on a drained group.
	close(poolDone)
	<-managerExited
	wg.Wait()

	state.mu.Lock()
	firstErr := state.firstErr
	completed := state.completed
	state.mu.Unlock()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && completed < total {
		return nil, err
	}
	return state.digests, nil
}

func (p *Pipeline) startWorkers(ctx context.Context, state *run, spawn func()) int {
	target := p.controller.Recommend(p.monitor.Sample())
	if target > state.total {
		target = state.total
	}
	started := 0
	for started < target && p.controller.TryAcquire(1) {
		started++
		spawn()
	}
	state.mu.Lock()
	state.workers = started
	state.targetWorkers = target
	state.mu.Unlock()

	p.logger.Debug("worker pool started",
		logging.Int(logging.FieldWorkers, started),
		logging.Int(logging.FieldPieceCount, state.total),
	)
	return started
}

// managePool re-evaluates the pool size on a wall-clock tick and whenever
// enough pieces complete, shrinking when host load rises and growing when
// budget frees up.
func (p *Pipeline) managePool(ctx context.Context, state *run, spawn func(), done <-chan struct{}) {
	ticker := time.NewTicker(p.rebalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-state.rebalance:
		}

		target := p.controller.Recommend(p.monitor.Sample())
		if target > state.total {
			target = state.total
		}

		state.mu.Lock()
		state.targetWorkers = target
		grow := target - state.workers
		current := state.workers
		state.mu.Unlock()

		for i := 0; i < grow; i++ {
			if !p.controller.TryAcquire(1) {
				break
			}
			state.mu.Lock()
			state.workers++
			state.mu.Unlock()
			spawn()
		}

		if grow != 0 {
			p.logger.Debug("worker pool rebalanced",
				logging.Int("target", target),
				logging.Int(logging.FieldWorkers, current),
			)
		}
	}
}

func (p *Pipeline) worker(ctx context.Context, state *run, indices <-chan int) {
	for index := range indices {
		data, err := state.manifest.ReadPiece(index, state.pieceLength)
		if err != nil {
			state.fail(err)
			return
		}
		digest := p.algorithm.Sum(data)

		state.mu.Lock()
		state.digests[index] = digest
		state.completed++
		completed := state.completed
		// Reporting under the lock keeps the sink strictly monotonic.
		state.sink(completed, state.total)
		pokeRebalance := completed%p.rebalancePieces == 0
		exit := state.workers > state.targetWorkers
		if exit {
			state.workers--
		}
		state.mu.Unlock()

		if pokeRebalance {
			select {
			case state.rebalance <- struct{}{}:
			default:
			}
		}
		if exit {
			return
		}
	}
}

// fail records the first error and aborts remaining dispatch.
func (state *run) fail(err error) {
	state.mu.Lock()
	if state.firstErr == nil {
		state.firstErr = err
	}
	state.workers--
	state.mu.Unlock()
	state.abort()
}

func (state *run) setWorkers(n int) {
	state.mu.Lock()
	state.workers = n
	if state.targetWorkers < n {
		state.targetWorkers = n
	}
	state.mu.Unlock()
}

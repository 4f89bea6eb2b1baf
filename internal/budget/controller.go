// Package budget converts resource samples into worker recommendations and
// enforces a single shared concurrency budget across all active jobs.
package budget

import (
	"context"
	"errors"
	"sync"

	"mediapack/internal/sysmon"
)

// Config bounds the worker recommendation.
type Config struct {
	MinWorkers        int
	MaxWorkers        int
	ReservedCores     int
	UtilizationCutoff float64
}

func (c Config) withDefaults(cores int) Config {
	if c.MinWorkers < 1 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers < 1 {
		c.MaxWorkers = cores
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.ReservedCores < 0 {
		c.ReservedCores = 0
	}
	if c.UtilizationCutoff <= 0 || c.UtilizationCutoff > 100 {
		c.UtilizationCutoff = 85
	}
	return c
}

// ErrClosed is returned by Acquire after the controller shuts down.
var ErrClosed = errors.New("concurrency budget closed")

// Controller owns the shared worker budget. Workers and jobs never mutate
// the budget directly; all access goes through Acquire/TryAcquire/Release.
type Controller struct {
	cfg Config

	mu     sync.Mutex
	cond   *sync.Cond
	inUse  int
	closed bool
}

// New builds a controller whose capacity is cfg.MaxWorkers (defaulted to
// the core count from a fresh host sample when unset).
func New(cfg Config, monitor sysmon.Monitor) *Controller {
	cores := 1
	if monitor != nil {
		if sample := monitor.Sample(); sample.Cores > 0 {
			cores = sample.Cores
		}
	}
	c := &Controller{cfg: cfg.withDefaults(cores)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Recommend converts a resource sample into a worker count within
// [MinWorkers, MaxWorkers]. Unknown utilization is treated as busy.
func (c *Controller) Recommend(sample sysmon.Sample) int {
	cores := sample.Cores
	if cores < 1 {
		cores = 1
	}

	workers := clamp(cores-c.cfg.ReservedCores, c.cfg.MinWorkers, c.cfg.MaxWorkers)
	if sample.Utilization < 0 || sample.Utilization > c.cfg.UtilizationCutoff {
		workers = clamp(workers/2, c.cfg.MinWorkers, c.cfg.MaxWorkers)
	}
	return workers
}

// Capacity returns the system-wide worker ceiling.
func (c *Controller) Capacity() int {
	return c.cfg.MaxWorkers
}

// InUse returns the number of currently acquired worker slots.
func (c *Controller) InUse() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse
}

// Acquire blocks until n worker slots are available or ctx is done.
func (c *Controller) Acquire(ctx context.Context, n int) error {
	if n < 1 {
		return nil
	}
	if n > c.cfg.MaxWorkers {
		return errors.New("budget: request exceeds capacity")
	}

	// Wake the cond waiter when the context fires.
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.cfg.MaxWorkers-c.inUse >= n {
			c.inUse += n
			return nil
		}
		c.cond.Wait()
	}
}

// TryAcquire grabs n slots without blocking.
func (c *Controller) TryAcquire(n int) bool {
	if n < 1 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cfg.MaxWorkers-c.inUse < n {
		return false
	}
	c.inUse += n
	return true
}

// Release returns n slots to the budget.
func (c *Controller) Release(n int) {
	if n < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inUse -= n
	if c.inUse < 0 {
		panic("budget: release without matching acquire")
	}
	c.cond.Broadcast()
}

// Close fails current and future Acquire calls. Held slots stay valid
// until released.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

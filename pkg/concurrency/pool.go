// Package concurrency wraps alitto/pond for the grid engine's fan-out
// order-status probes against the exchange, which may proceed in parallel
// across pending buy orders.
package concurrency

import (
	"fmt"
	"time"

	"github.com/alitto/pond"

	"gridtrader/internal/core"
)

// PoolConfig configures a WorkerPool.
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
}

// WorkerPool wraps alitto/pond with a standardized panic handler.
type WorkerPool struct {
	pool   *pond.WorkerPool
	config PoolConfig
	logger core.ILogger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 64
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Second
	}

	pool := pond.New(
		cfg.MaxWorkers,
		cfg.MaxCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			logger.Error("worker pool panic recovered", "pool", cfg.Name, "panic", p)
		}),
	)

	return &WorkerPool{
		pool:   pool,
		config: cfg,
		logger: logger.WithField("component", "worker_pool").WithField("pool", cfg.Name),
	}
}

// Submit adds a task to the pool, blocking if the pool is saturated.
func (wp *WorkerPool) Submit(task func()) {
	wp.pool.Submit(task)
}

// SubmitAndWait submits a task and blocks until it completes.
func (wp *WorkerPool) SubmitAndWait(task func()) {
	done := make(chan struct{})
	wp.pool.Submit(func() {
		task()
		close(done)
	})
	<-done
}

// Stop drains and stops the pool.
func (wp *WorkerPool) Stop() {
	wp.pool.StopAndWait()
}

// Stats reports pool utilization, useful for the operator STATUS surface.
func (wp *WorkerPool) Stats() string {
	return fmt.Sprintf("running=%d idle=%d waiting=%d",
		wp.pool.RunningWorkers(), wp.pool.IdleWorkers(), wp.pool.WaitingTasks())
}

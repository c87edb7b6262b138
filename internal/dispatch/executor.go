package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// Task is one unit of database work. It runs on a single worker with that
// worker's affine connection and must not retain the connection.
type Task func(ctx context.Context, conn Conn) (any, error)

// outcome carries a resolved task result.
type outcome struct {
	value any
	err   error
}

// Future delivers a task's result to the submitting request context.
type Future struct {
	ch chan outcome
}

// Wait blocks until the task resolves or ctx is done. When the caller
// gives up first, the dispatched task still runs to completion on its
// worker; its result is simply discarded.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case out := <-f.ch:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(value any, err error) {
	f.ch <- outcome{value: value, err: err}
}

// PoolConfig holds configuration for the worker pool.
type PoolConfig struct {
	// Workers is the fixed number of workers (default: 100).
	Workers int

	// QueueDepth caps the submission queue. A full queue blocks Submit
	// rather than rejecting work (default: 1024).
	QueueDepth int
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:    100,
		QueueDepth: 1024,
	}
}

// Pool is a bounded set of workers pulling operations from a shared
// queue. Each worker resolves one operation at a time against its own
// connection, so operations landing on the same worker execute strictly
// sequentially while different workers proceed in parallel.
type Pool struct {
	registry *Registry
	queue    chan job

	// mu guards closed and orders in-flight Submit sends before the
	// queue is closed.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	task Task
	fut  *Future
}

// NewPool starts cfg.Workers workers against the given registry.
func NewPool(cfg PoolConfig, registry *Registry) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 100
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}

	p := &Pool{
		registry: registry,
		queue:    make(chan job, cfg.QueueDepth),
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues a task and returns its future. Submit blocks while the
// queue is full; it only fails when ctx is done first or the pool has shut
// down. The queue never rejects work for depth alone.
func (p *Pool) Submit(ctx context.Context, task Task) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("dispatch: pool is shut down")
	}

	fut := &Future{ch: make(chan outcome, 1)}
	select {
	case p.queue <- job{task: task, fut: fut}:
		return fut, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker executes queued operations one at a time on its affine
// connection. Tasks run under a background context: once dispatched, an
// operation is never interrupted, even when the submitting request is
// long gone.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for j := range p.queue {
		ctx := context.Background()
		conn, err := p.registry.Acquire(ctx, id)
		if err != nil {
			j.fut.resolve(nil, err)
			continue
		}
		value, err := j.task(ctx, conn)
		j.fut.resolve(value, err)
	}
}

// Shutdown stops accepting work, drains queued operations, waits for
// workers to finish, and tears down every worker connection.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	// In-flight Submits hold the read lock through their send, so no send
	// can race this close.
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.registry.CloseAll()
}

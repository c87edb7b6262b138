// Package dispatch runs blocking database work on a fixed pool of workers,
// each owning one thread-affine backend connection.
package dispatch

import (
	"context"
	"database/sql"
	"sync"
)

// Conn is the connection capability workers hand to tasks. *sql.Conn
// satisfies it; tests substitute fakes.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// ConnectFunc dials one dedicated backend connection.
type ConnectFunc func(ctx context.Context) (Conn, error)

// Registry owns the thread-affine mapping from worker identity to a live
// backend connection. Connections are created lazily on a worker's first
// acquire and exclusively bound to that worker until the pool shuts down;
// there is no per-operation checkout or release.
type Registry struct {
	connect ConnectFunc

	mu    sync.Mutex
	conns map[int]Conn
}

// NewRegistry creates a registry that dials connections with connect.
func NewRegistry(connect ConnectFunc) *Registry {
	return &Registry{
		connect: connect,
		conns:   make(map[int]Conn),
	}
}

// Acquire returns the connection bound to workerID, dialing one on first
// use. A dial failure is fatal only for the current operation: nothing is
// cached, so the worker's next acquire dials again. Only workerID's own
// worker may call Acquire for that id, so two lookups of the same id never
// race each other.
func (r *Registry) Acquire(ctx context.Context, workerID int) (Conn, error) {
	r.mu.Lock()
	conn, ok := r.conns[workerID]
	r.mu.Unlock()
	if ok {
		return conn, nil
	}

	conn, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.conns[workerID] = conn
	r.mu.Unlock()
	return conn, nil
}

// Size reports how many connections are currently bound.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll tears down every bound connection. Called once, at pool
// shutdown, after all workers have stopped.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for id, conn := range r.conns {
		if err := conn.Close(); err != nil {
			lastErr = err
		}
		delete(r.conns, id)
	}
	return lastErr
}

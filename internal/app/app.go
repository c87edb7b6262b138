// Package app provides the application lifecycle management for Fluxtable.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	httpapi "github.com/fluxtable/fluxtable/internal/api/http"
	"github.com/fluxtable/fluxtable/internal/backend"
	"github.com/fluxtable/fluxtable/internal/backup"
	"github.com/fluxtable/fluxtable/internal/config"
	"github.com/fluxtable/fluxtable/internal/dispatch"
	"github.com/fluxtable/fluxtable/internal/probe"
	"github.com/fluxtable/fluxtable/internal/query"
	"github.com/fluxtable/fluxtable/internal/schema"
	"github.com/fluxtable/fluxtable/internal/server"
	"github.com/fluxtable/fluxtable/internal/storage"
	"github.com/fluxtable/fluxtable/internal/store"
)

// App wires the configured backend, worker pool, store, and HTTP server
// together and manages their lifecycle.
type App struct {
	cfg *config.Config

	backend     backend.Backend
	pool        *dispatch.Pool
	store       *store.Store
	probe       *probe.Probe
	snapshotter *backup.Snapshotter
	shutdown    *server.ShutdownManager
	httpServer  *http.Server

	mu      sync.Mutex
	running bool
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start builds every component. Nothing dials the backend here: the
// first worker to take an operation establishes its connection, so an
// unreachable warehouse leaves the service up and reporting unavailable.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	b, err := a.buildBackend()
	if err != nil {
		return err
	}
	if err := b.Open(ctx); err != nil {
		return err
	}
	a.backend = b

	registry := dispatch.NewRegistry(func(ctx context.Context) (dispatch.Conn, error) {
		return b.Connect(ctx)
	})
	a.pool = dispatch.NewPool(dispatch.PoolConfig{
		Workers:    a.cfg.Executor.Workers,
		QueueDepth: a.cfg.Executor.QueueDepth,
	}, registry)

	builder, err := query.NewBuilder(a.cfg.Table.Name, b.QuoteIdent)
	if err != nil {
		return err
	}
	mgr := schema.NewManager(b, builder, nil)
	a.warmColumnCache(ctx, mgr, builder)
	a.store = store.New(a.pool, b, mgr, builder)
	a.store.SetOrderBy(a.cfg.Table.OrderBy)

	a.probe = probe.New(a.store, probe.Config{
		Retries: a.cfg.Readiness.Retries,
		Delay:   a.cfg.Readiness.Delay,
		Timeout: a.cfg.Readiness.Timeout,
	})

	if err := a.buildSnapshotter(ctx); err != nil {
		return err
	}

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{})
	a.shutdown.RegisterCloser(a.backend)
	a.shutdown.RegisterCloser(server.CloserFunc(a.pool.Shutdown))

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      a.buildHandler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.running = true
	log.Printf("app: backend=%s table=%s workers=%d addr=%s",
		b.Name(), a.cfg.Table.Name, a.cfg.Executor.Workers, a.cfg.HTTP.Addr)
	return nil
}

// Run starts the HTTP listener and blocks until a shutdown signal or a
// server failure.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is not started")
	}
	gs := server.NewGracefulHTTPServer(a.httpServer, a.shutdown)
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.ListenAndServe()
	}()

	go func() {
		if err := a.shutdown.ListenForSignals(ctx); err != nil {
			log.Printf("app: shutdown: %v", err)
		}
	}()

	return <-errCh
}

// Stop initiates graceful shutdown.
func (a *App) Stop() error {
	a.mu.Lock()
	sm := a.shutdown
	a.mu.Unlock()
	if sm == nil {
		return nil
	}
	return sm.Shutdown("stop requested")
}

// Store exposes the record store, mainly for tests.
func (a *App) Store() *store.Store {
	return a.store
}

// warmColumnCache seeds the schema manager with the columns already in
// the table. It runs off the critical path and failures are fine: the
// cache fills on demand and duplicate alterations are benign.
func (a *App) warmColumnCache(ctx context.Context, mgr *schema.Manager, builder *query.Builder) {
	fut, err := a.pool.Submit(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		return schema.Discover(ctx, conn, builder)
	})
	if err != nil {
		return
	}
	go func() {
		out, err := fut.Wait(context.Background())
		if err != nil {
			log.Printf("app: column discovery skipped: %v", err)
			return
		}
		mgr.Seed(out.([]string))
	}()
}

// buildBackend constructs the configured engine variant.
func (a *App) buildBackend() (backend.Backend, error) {
	workers := a.cfg.Executor.Workers
	table := a.cfg.Table.Name

	if a.cfg.Backend == config.BackendRemote {
		return backend.NewSnowflake(a.cfg.Snowflake, table, workers)
	}

	switch a.cfg.Local.Driver {
	case config.DriverSQLite:
		return backend.NewSQLite(a.cfg.Local.Path, table, workers)
	default:
		return backend.NewDuckDB(a.cfg.Local.Path, table, workers)
	}
}

// buildSnapshotter wires snapshot storage when the backend has a local
// file to archive. The remote warehouse has nothing to snapshot.
func (a *App) buildSnapshotter(ctx context.Context) error {
	if a.backend.CheckpointStmt() == "" {
		return nil
	}

	var (
		objects storage.ObjectStorage
		err     error
	)
	switch a.cfg.Snapshot.Type {
	case "s3":
		objects, err = storage.NewS3Storage(ctx, a.cfg.Snapshot.S3.Bucket, storage.S3Config{
			Region:   a.cfg.Snapshot.S3.Region,
			Endpoint: a.cfg.Snapshot.S3.Endpoint,
		})
	default:
		objects, err = storage.NewLocalStorage(a.cfg.Snapshot.Path)
	}
	if err != nil {
		return fmt.Errorf("failed to build snapshot storage: %w", err)
	}

	a.snapshotter = backup.NewSnapshotter(a.store, objects, a.cfg.Local.Path, a.backend.Name())
	return nil
}

// buildHandler assembles the route table behind the middleware chain.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	httpapi.NewItemsHandler(a.store).Register(mux)
	httpapi.NewHealthHandler(a.probe).Register(mux)

	var snapshots httpapi.SnapshotRunner
	if a.snapshotter != nil {
		snapshots = a.snapshotter
	}
	httpapi.NewAdminHandler(snapshots).Register(mux)

	return httpapi.DefaultMiddleware()(mux)
}

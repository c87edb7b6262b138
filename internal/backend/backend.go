// Package backend abstracts the database engines Fluxtable can write to:
// the embedded local engines (DuckDB, SQLite) and the remote Snowflake
// warehouse. Identifier quoting, autoincrement dialect, and authentication
// are folded into each variant; everything above this package is
// engine-neutral.
package backend

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// Querier is the read capability a backend needs from a connection.
// *sql.Conn satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is the write capability a backend needs from a connection.
// *sql.Conn satisfies it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Backend is the capability set shared by all engine variants.
type Backend interface {
	// Name identifies the variant for logs: "duckdb", "sqlite", "snowflake".
	Name() string

	// Open prepares the shared database handle. It does not dial; failures
	// to reach the engine surface per worker at Connect time.
	Open(ctx context.Context) error

	// Connect returns a dedicated physical connection. Each call pins one
	// connection out of the handle's pool; the caller owns it until Close.
	// The first successful connection also runs the idempotent table
	// bootstrap.
	Connect(ctx context.Context) (*sql.Conn, error)

	// QuoteIdent quotes an already-validated identifier for embedding in
	// statement text.
	QuoteIdent(name string) string

	// ColumnType maps a value kind to the variant's storage type name.
	ColumnType(k types.Kind) string

	// NextID pre-assigns the next record id from the variant's sequence.
	// Variants relying on autoincrement report ok=false and the store reads
	// the id back from the insert result instead.
	NextID(ctx context.Context, q Querier) (id int64, ok bool, err error)

	// PingQuery is the trivial round-trip statement for readiness checks.
	PingQuery() string

	// CheckpointStmt is the statement that flushes the engine's state to
	// its database file before a snapshot. Empty when the variant has no
	// local file to snapshot.
	CheckpointStmt() string

	// IsDuplicateColumn reports whether an ALTER failure means the column
	// already exists (the benign schema race).
	IsDuplicateColumn(err error) bool

	// IsConstraintViolation reports whether an execution failure is an
	// engine-reported constraint violation.
	IsConstraintViolation(err error) bool

	// Close releases the shared handle and every connection derived from it.
	Close() error
}

// quoteIdent double-quotes an identifier, escaping embedded quotes. All
// three dialects accept this form, and quoting preserves identifier case
// on engines that would otherwise fold it.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// bootstrapper runs a variant's table DDL exactly once, on the first
// connection that succeeds. A failed attempt is retried by the next
// connection rather than latched.
type bootstrapper struct {
	mu   sync.Mutex
	done bool
}

func (b *bootstrapper) ensure(ctx context.Context, conn Execer, stmts []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewSchemaError(apperrors.CodeAlterFailed,
				"bootstrapping record table", err)
		}
	}
	b.done = true
	return nil
}

// connLimit sizes the shared handle's pool: one pinned connection per
// worker plus headroom for bootstrap and administrative statements.
func connLimit(workers int) int {
	if workers <= 0 {
		workers = 1
	}
	return workers + 2
}

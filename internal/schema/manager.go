// Package schema grows the record table's column set as new fields
// appear. Columns are only ever added, never removed or retyped, and
// concurrent workers racing to add the same column are expected and
// harmless.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/puzpuzpuz/xsync/v3"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/internal/query"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// Dialect is the slice of backend behavior the manager needs: storage
// type inference targets and the benign-race classifier.
type Dialect interface {
	ColumnType(k types.Kind) string
	IsDuplicateColumn(err error) bool
}

// Execer runs the additive alterations. *sql.Conn satisfies it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier runs the column-discovery probe. *sql.Conn satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Manager tracks the known column set and issues additive alterations for
// fields it has not seen. The known set is shared across all workers
// through a concurrent map; no lock is held around the alteration itself.
// Racing "add column" statements are resolved optimistically: a failure
// meaning "already exists" is success.
type Manager struct {
	dialect Dialect
	builder *query.Builder
	known   *xsync.MapOf[string, struct{}]
}

// NewManager creates a manager seeded with the columns that already exist
// (from Discover at startup). The id column is always known.
func NewManager(dialect Dialect, builder *query.Builder, initial []string) *Manager {
	m := &Manager{
		dialect: dialect,
		builder: builder,
		known:   xsync.NewMapOf[string, struct{}](),
	}
	m.known.Store("id", struct{}{})
	for _, name := range initial {
		m.known.Store(name, struct{}{})
	}
	return m
}

// Discover reads the current column set with a zero-row probe.
func Discover(ctx context.Context, q Querier, builder *query.Builder) ([]string, error) {
	rows, err := q.QueryContext(ctx, builder.Probe())
	if err != nil {
		return nil, apperrors.NewSchemaError(apperrors.CodeDiscoverFailed,
			fmt.Sprintf("probing columns of %s", builder.Table()), err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewSchemaError(apperrors.CodeDiscoverFailed,
			fmt.Sprintf("reading columns of %s", builder.Table()), err)
	}
	return cols, nil
}

// EnsureColumns makes every field in the payload a column, inferring the
// storage type from the first-seen value. Already-known fields cost one
// concurrent-map lookup; a second call with the same fields performs no
// alteration at all. Later writes with a differently shaped value reuse
// the existing column; coercion is the backend's business.
func (m *Manager) EnsureColumns(ctx context.Context, ex Execer, fields map[string]types.Value) error {
	for _, name := range types.FieldNames(fields) {
		if _, ok := m.known.Load(name); ok {
			continue
		}

		stmt, err := m.builder.AddColumn(name, m.dialect.ColumnType(fields[name].Kind))
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			if !m.dialect.IsDuplicateColumn(err) {
				return apperrors.NewSchemaError(apperrors.CodeAlterFailed,
					fmt.Sprintf("adding column %s", name), err)
			}
			// Another worker won the race; same outcome.
			log.Printf("schema: column %s already added concurrently", name)
		}
		m.known.Store(name, struct{}{})
	}
	return nil
}

// Seed marks columns as known without altering anything. Used after a
// late Discover against a backend that was unreachable at startup.
func (m *Manager) Seed(names []string) {
	for _, name := range names {
		m.known.Store(name, struct{}{})
	}
}

// KnownColumns reports the column names the manager has seen so far.
func (m *Manager) KnownColumns() []string {
	cols := make([]string, 0, m.known.Size())
	m.known.Range(func(name string, _ struct{}) bool {
		cols = append(cols, name)
		return true
	})
	return cols
}

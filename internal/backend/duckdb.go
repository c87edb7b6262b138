package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/internal/query"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// DuckDB is the embedded-local analytical engine, the default backend.
// Record ids come from a dedicated sequence so they are never reused
// after deletion.
type DuckDB struct {
	path    string
	table   string
	workers int

	db   *sql.DB
	boot bootstrapper
}

// NewDuckDB creates a DuckDB backend for the database file at path.
func NewDuckDB(path, table string, workers int) (*DuckDB, error) {
	if err := query.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return &DuckDB{path: path, table: table, workers: workers}, nil
}

func (d *DuckDB) Name() string { return "duckdb" }

// Open prepares the shared handle. DuckDB permits many connections within
// one process but only one process per database file; all workers derive
// their pinned connection from this single handle.
func (d *DuckDB) Open(ctx context.Context) error {
	db, err := sql.Open("duckdb", d.path)
	if err != nil {
		return apperrors.NewConnectionError(apperrors.CodeConnectFailed,
			fmt.Sprintf("opening duckdb database %s", d.path), err)
	}
	db.SetMaxOpenConns(connLimit(d.workers))
	db.SetMaxIdleConns(connLimit(d.workers))
	d.db = db
	return nil
}

// Connect pins one physical connection for a worker and bootstraps the
// record table on the first success.
func (d *DuckDB) Connect(ctx context.Context) (*sql.Conn, error) {
	if d.db == nil {
		return nil, apperrors.New(apperrors.CategoryConnection, apperrors.CodeConnectFailed,
			"duckdb backend is not open")
	}
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, apperrors.NewConnectionError(apperrors.CodeConnectFailed,
			"acquiring duckdb connection", err)
	}
	if err := d.boot.ensure(ctx, conn, d.bootstrapStmts()); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *DuckDB) sequence() string { return d.table + "_seq" }

func (d *DuckDB) bootstrapStmts() []string {
	return []string{
		fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START 1", quoteIdent(d.sequence())),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s BIGINT PRIMARY KEY DEFAULT nextval('%s'))",
			quoteIdent(d.table), quoteIdent("id"), d.sequence()),
	}
}

func (d *DuckDB) QuoteIdent(name string) string { return quoteIdent(name) }

func (d *DuckDB) ColumnType(k types.Kind) string {
	switch k {
	case types.KindBool:
		return "BOOLEAN"
	case types.KindInt:
		return "BIGINT"
	case types.KindFloat:
		return "DOUBLE"
	default:
		// Strings, arrays, and null-first fields share the flexible type.
		return "TEXT"
	}
}

// NextID draws the next record id from the sequence before the insert, so
// the created record can be returned without a read-back.
func (d *DuckDB) NextID(ctx context.Context, q Querier) (int64, bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT nextval('%s')", d.sequence()))
	if err != nil {
		return 0, false, apperrors.NewInternalError("advancing id sequence", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, apperrors.NewInternalError("id sequence returned no row", rows.Err())
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, false, apperrors.NewInternalError("scanning id sequence value", err)
	}
	return id, true, nil
}

func (d *DuckDB) PingQuery() string { return "SELECT 1" }

func (d *DuckDB) CheckpointStmt() string { return "CHECKPOINT" }

func (d *DuckDB) IsDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column")
}

func (d *DuckDB) IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate key")
}

func (d *DuckDB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

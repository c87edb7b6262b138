package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/internal/query"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// SQLite is the lighter embedded-local variant. AUTOINCREMENT keeps
// deleted ids from ever being reassigned, so it needs no sequence.
type SQLite struct {
	path    string
	table   string
	workers int

	db   *sql.DB
	boot bootstrapper
}

// NewSQLite creates a SQLite backend for the database file at path.
func NewSQLite(path, table string, workers int) (*SQLite, error) {
	if err := query.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return &SQLite{path: path, table: table, workers: workers}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

// Open prepares the shared handle with WAL mode and a busy timeout so
// concurrent worker connections queue on the writer instead of failing.
func (s *SQLite) Open(ctx context.Context) error {
	dsn := s.path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return apperrors.NewConnectionError(apperrors.CodeConnectFailed,
			fmt.Sprintf("opening sqlite database %s", s.path), err)
	}
	db.SetMaxOpenConns(connLimit(s.workers))
	db.SetMaxIdleConns(connLimit(s.workers))
	s.db = db
	return nil
}

func (s *SQLite) Connect(ctx context.Context) (*sql.Conn, error) {
	if s.db == nil {
		return nil, apperrors.New(apperrors.CategoryConnection, apperrors.CodeConnectFailed,
			"sqlite backend is not open")
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, apperrors.NewConnectionError(apperrors.CodeConnectFailed,
			"acquiring sqlite connection", err)
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY AUTOINCREMENT)",
			quoteIdent(s.table), quoteIdent("id")),
	}
	if err := s.boot.ensure(ctx, conn, stmts); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (s *SQLite) QuoteIdent(name string) string { return quoteIdent(name) }

func (s *SQLite) ColumnType(k types.Kind) string {
	switch k {
	case types.KindBool:
		return "BOOLEAN"
	case types.KindInt:
		return "INTEGER"
	case types.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// NextID reports ok=false: SQLite assigns ids through AUTOINCREMENT and
// the store reads them back from the insert result.
func (s *SQLite) NextID(ctx context.Context, q Querier) (int64, bool, error) {
	return 0, false, nil
}

func (s *SQLite) PingQuery() string { return "SELECT 1" }

func (s *SQLite) CheckpointStmt() string { return "PRAGMA wal_checkpoint(TRUNCATE)" }

func (s *SQLite) IsDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func (s *SQLite) IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

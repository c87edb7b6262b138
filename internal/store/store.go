// Package store implements the record operations on top of the worker
// pool. Every statement runs on a pool worker's pinned connection; the
// caller-facing methods validate input, submit a task, and wait on its
// future.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/fluxtable/fluxtable/internal/backend"
	"github.com/fluxtable/fluxtable/internal/dispatch"
	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/internal/query"
	"github.com/fluxtable/fluxtable/internal/schema"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// Store exposes the record CRUD surface. It is safe for concurrent use;
// all statement execution is serialized onto pool workers.
type Store struct {
	pool    *dispatch.Pool
	backend backend.Backend
	schema  *schema.Manager
	builder *query.Builder
	orderBy string
}

// New wires a store over an already-opened backend.
func New(pool *dispatch.Pool, b backend.Backend, mgr *schema.Manager, builder *query.Builder) *Store {
	return &Store{
		pool:    pool,
		backend: b,
		schema:  mgr,
		builder: builder,
		orderBy: "id",
	}
}

// SetOrderBy changes the column List orders by. Call before serving.
func (s *Store) SetOrderBy(column string) {
	if column != "" {
		s.orderBy = column
	}
}

// run submits a task and waits for its result. Submission honors the
// caller's context; once queued, the task itself runs to completion on
// a worker regardless of the caller giving up.
func (s *Store) run(ctx context.Context, task dispatch.Task) (any, error) {
	fut, err := s.pool.Submit(ctx, task)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Create inserts a new record and returns it as stored, id assigned.
// Unknown fields become columns before the insert.
func (s *Store) Create(ctx context.Context, fields map[string]types.Value) (types.Record, error) {
	if err := s.builder.ValidateFields(fields); err != nil {
		return types.Record{}, err
	}
	out, err := s.run(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		if err := s.schema.EnsureColumns(ctx, conn, fields); err != nil {
			return nil, err
		}

		var explicit *int64
		id, ok, err := s.backend.NextID(ctx, conn)
		if err != nil {
			return nil, err
		}
		if ok {
			explicit = &id
		}

		stmt, args, err := s.builder.Insert(fields, explicit)
		if err != nil {
			return nil, err
		}
		res, err := conn.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, s.classify("inserting record", err)
		}
		if !ok {
			id, err = res.LastInsertId()
			if err != nil {
				return nil, apperrors.NewInternalError("reading assigned record id", err)
			}
		}
		return s.fetchOne(ctx, conn, id)
	})
	if err != nil {
		return types.Record{}, err
	}
	return out.(types.Record), nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (types.Record, error) {
	out, err := s.run(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		return s.fetchOne(ctx, conn, id)
	})
	if err != nil {
		return types.Record{}, err
	}
	return out.(types.Record), nil
}

// List returns every record ordered by id.
func (s *Store) List(ctx context.Context) ([]types.Record, error) {
	stmt, err := s.builder.SelectAll(s.orderBy)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		rows, err := conn.QueryContext(ctx, stmt)
		if err != nil {
			return nil, s.classify("listing records", err)
		}
		defer rows.Close()
		return scanRecords(rows)
	})
	if err != nil {
		return nil, err
	}
	return out.([]types.Record), nil
}

// Update applies a partial field update and returns the full record as
// stored afterwards. Fields absent from the payload keep their values.
func (s *Store) Update(ctx context.Context, id int64, fields map[string]types.Value) (types.Record, error) {
	if err := s.builder.ValidateFields(fields); err != nil {
		return types.Record{}, err
	}
	out, err := s.run(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		if err := s.schema.EnsureColumns(ctx, conn, fields); err != nil {
			return nil, err
		}
		stmt, args, err := s.builder.Update(id, fields)
		if err != nil {
			return nil, err
		}
		res, err := conn.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, s.classify("updating record", err)
		}
		if err := requireRow(res, id); err != nil {
			return nil, err
		}
		return s.fetchOne(ctx, conn, id)
	})
	if err != nil {
		return types.Record{}, err
	}
	return out.(types.Record), nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.run(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		stmt, args := s.builder.Delete(id)
		res, err := conn.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, s.classify("deleting record", err)
		}
		return nil, requireRow(res, id)
	})
	return err
}

// Ping runs the backend's trivial round trip on a worker connection.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.run(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		rows, err := conn.QueryContext(ctx, s.backend.PingQuery())
		if err != nil {
			return nil, apperrors.NewConnectionError(apperrors.CodeConnectFailed,
				"pinging backend", err)
		}
		return nil, rows.Close()
	})
	return err
}

// Checkpoint flushes engine state to the database file ahead of a
// snapshot. Backends without a local file report it as unsupported.
func (s *Store) Checkpoint(ctx context.Context) error {
	stmt := s.backend.CheckpointStmt()
	if stmt == "" {
		return apperrors.NewValidationError(apperrors.CodeUnsupported,
			fmt.Sprintf("backend %s has no local state to checkpoint", s.backend.Name()))
	}
	_, err := s.run(ctx, func(ctx context.Context, conn dispatch.Conn) (any, error) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, apperrors.NewInternalError("checkpointing backend", err)
		}
		return nil, nil
	})
	return err
}

// fetchOne reads one record by id on the caller's connection.
func (s *Store) fetchOne(ctx context.Context, conn dispatch.Conn, id int64) (types.Record, error) {
	stmt, args := s.builder.SelectOne(id)
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return types.Record{}, s.classify("fetching record", err)
	}
	defer rows.Close()
	recs, err := scanRecords(rows)
	if err != nil {
		return types.Record{}, err
	}
	if len(recs) == 0 {
		return types.Record{}, apperrors.NewNotFoundError(
			fmt.Sprintf("record %d not found", id))
	}
	return recs[0], nil
}

// classify turns a driver failure into the store's error taxonomy.
func (s *Store) classify(action string, err error) error {
	if s.backend.IsConstraintViolation(err) {
		return apperrors.NewConstraintError(action, err)
	}
	return apperrors.NewInternalError(action, err)
}

// requireRow converts a zero-row DML result into a not-found error.
func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("reading rows affected", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("record %d not found", id))
	}
	return nil
}

// scanRecords reads every row into records. Columns holding SQL NULL are
// omitted from the field map rather than surfaced as null values, so a
// record only carries the fields it was actually written with.
func scanRecords(rows *sql.Rows) ([]types.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewInternalError("reading result columns", err)
	}
	recs := make([]types.Record, 0, 8)
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.NewInternalError("scanning record row", err)
		}

		rec := types.Record{Fields: make(map[string]types.Value, len(cols)-1)}
		for i, name := range cols {
			if raw[i] == nil {
				continue
			}
			if name == "id" {
				id, err := asID(raw[i])
				if err != nil {
					return nil, err
				}
				rec.ID = id
				continue
			}
			rec.Fields[name] = types.FromDriver(raw[i])
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("iterating record rows", err)
	}
	return recs, nil
}

// asID normalizes the id column across drivers; the warehouse driver
// hands NUMBER columns back as strings.
func asID(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, apperrors.NewInternalError(
			fmt.Sprintf("unexpected id column type %T", raw), nil)
	}
}

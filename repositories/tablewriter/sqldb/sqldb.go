// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sqldb

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter"
	"github.com/Xorcist77/sqlsink/utils/database"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

const (
	// DefaultMaxRowsPerStatement bounds the rows of one INSERT statement so
	// that the bind parameter count stays under the protocol limit.
	DefaultMaxRowsPerStatement = 500
	maxBindParameters          = 65535
)

// SQLTableWriter writes log batches with multi-row INSERT statements through
// database/sql and the lib/pq driver.
type SQLTableWriter struct {
	db             *sql.DB
	maxRowsPerStmt int
	closed         atomic.Bool
}

var _ tablewriter.ITableWriter = (*SQLTableWriter)(nil)

// Options for configuring the SQL table writer.
type Options struct {
	// MaxRowsPerStatement splits large batches into several INSERT
	// statements inside the same transaction (default: 500).
	MaxRowsPerStatement int
}

// NewTableWriter creates a writer on top of db. The writer owns db and
// closes it on Close.
func NewTableWriter(db *sql.DB, opts Options) *SQLTableWriter {
	if opts.MaxRowsPerStatement <= 0 {
		opts.MaxRowsPerStatement = DefaultMaxRowsPerStatement
	}
	return &SQLTableWriter{db: db, maxRowsPerStmt: opts.MaxRowsPerStatement}
}

// EnsureSchema creates the log table if it does not exist, or checks its
// columns otherwise.
func (w *SQLTableWriter) EnsureSchema(
	ctx context.Context, l *logger.Logger, schema columns.Schema,
) (result tablewriter.EnsureResult, retErr error) {
	if w.closed.Load() {
		return 0, tablewriter.NewPermanentError("ensure schema", tablewriter.ErrWriterClosed)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to begin transaction"))
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				l.Warn("failed to rollback schema transaction",
					slog.String("table", schema.Table),
					slog.Any("error", rbErr))
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", database.LockID(schema.Table)); err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to acquire schema lock"))
	}

	existing, err := existingColumns(ctx, tx, schema.Table)
	if err != nil {
		return 0, classify("ensure schema", err)
	}

	result = tablewriter.SchemaExists
	if len(existing) == 0 {
		if _, err := tx.ExecContext(ctx, tablewriter.CreateTableStatement(schema)); err != nil {
			return 0, classify("ensure schema", errors.Wrapf(err, "failed to create table %s", schema.Table))
		}
		result = tablewriter.SchemaCreated
	} else if err := tablewriter.CheckColumns(schema, existing); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to commit schema transaction"))
	}
	committed = true

	l.Debug("log table ensured",
		slog.String("table", schema.Table),
		slog.String("result", result.String()))
	return result, nil
}

// BulkWrite inserts the batch in one transaction using as few multi-row
// INSERT statements as the parameter limit allows.
func (w *SQLTableWriter) BulkWrite(
	ctx context.Context,
	l *logger.Logger,
	batch events.Batch,
	schema columns.Schema,
	mode tablewriter.TriggerMode,
) error {
	if len(batch) == 0 {
		return nil
	}
	if w.closed.Load() {
		return tablewriter.NewPermanentError("bulk write", tablewriter.ErrWriterClosed)
	}

	rows, err := tablewriter.BatchRows(schema, batch)
	if err != nil {
		return err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("bulk write", errors.Wrap(err, "failed to begin transaction"))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if mode == tablewriter.TriggerModeBypass {
		if _, err := tx.ExecContext(ctx, tablewriter.BypassTriggersStatement); err != nil {
			return classify("bulk write", errors.Wrap(err, "failed to disable triggers"))
		}
	}

	chunk := w.rowsPerStatement(len(schema.ColumnNames()))
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		args := make([]any, 0, (end-start)*len(rows[start]))
		for _, row := range rows[start:end] {
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, tablewriter.InsertStatement(schema, end-start), args...); err != nil {
			return classify("bulk write", errors.Wrapf(err, "failed to insert rows %d-%d", start, end-1))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("bulk write", errors.Wrap(err, "failed to commit batch"))
	}
	committed = true

	l.Debug("batch written",
		slog.String("table", schema.Table),
		slog.Int("rows", len(rows)),
		slog.String("trigger_mode", mode.String()))
	return nil
}

// Close closes the underlying database handle.
func (w *SQLTableWriter) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return w.db.Close()
}

func (w *SQLTableWriter) rowsPerStatement(columnCount int) int {
	n := w.maxRowsPerStmt
	if columnCount > 0 && n*columnCount > maxBindParameters {
		n = maxBindParameters / columnCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

func existingColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	schemaName, tableName := tablewriter.SplitTableName(table)
	rows, err := tx.QueryContext(ctx, tablewriter.ExistingColumnsQuery, schemaName, tableName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query existing columns")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan existing column")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating column rows")
	}
	return names, nil
}

// classify wraps err with the classification of its SQLSTATE, if any.
func classify(op string, err error) error {
	var pqErr *pq.Error
	code := ""
	if errors.As(err, &pqErr) {
		code = string(pqErr.Code)
	}
	return tablewriter.Wrap(op, code, err)
}

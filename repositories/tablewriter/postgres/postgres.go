// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package postgres

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter"
	"github.com/Xorcist77/sqlsink/utils/database"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXTableWriter writes log batches with the COPY protocol through a pgx
// connection pool. It works against PostgreSQL and wire-compatible servers.
type PGXTableWriter struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

var _ tablewriter.ITableWriter = (*PGXTableWriter)(nil)

// NewTableWriter creates a writer on top of an existing pool. The writer owns
// the pool and closes it on Close.
func NewTableWriter(pool *pgxpool.Pool) *PGXTableWriter {
	return &PGXTableWriter{pool: pool}
}

// EnsureSchema creates the log table if it does not exist, or checks its
// columns otherwise. Concurrent callers serialize on an advisory lock.
func (w *PGXTableWriter) EnsureSchema(
	ctx context.Context, l *logger.Logger, schema columns.Schema,
) (result tablewriter.EnsureResult, retErr error) {
	if w.closed.Load() {
		return 0, tablewriter.NewPermanentError("ensure schema", tablewriter.ErrWriterClosed)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to begin transaction"))
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				l.Warn("failed to rollback schema transaction",
					slog.String("table", schema.Table),
					slog.Any("error", rbErr))
			}
		}
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", database.LockID(schema.Table)); err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to acquire schema lock"))
	}

	schemaName, tableName := tablewriter.SplitTableName(schema.Table)
	rows, err := tx.Query(ctx, tablewriter.ExistingColumnsQuery, schemaName, tableName)
	if err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to query existing columns"))
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to scan existing columns"))
	}

	result = tablewriter.SchemaExists
	if len(existing) == 0 {
		if _, err := tx.Exec(ctx, tablewriter.CreateTableStatement(schema)); err != nil {
			return 0, classify("ensure schema", errors.Wrapf(err, "failed to create table %s", schema.Table))
		}
		result = tablewriter.SchemaCreated
	} else if err := tablewriter.CheckColumns(schema, existing); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify("ensure schema", errors.Wrap(err, "failed to commit schema transaction"))
	}
	committed = true

	l.Debug("log table ensured",
		slog.String("table", schema.Table),
		slog.String("result", result.String()))
	return result, nil
}

// BulkWrite copies the batch into the table in one transaction. In bypass
// mode the transaction runs with session_replication_role set to replica,
// which keeps ordinary row triggers from firing.
func (w *PGXTableWriter) BulkWrite(
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

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return classify("bulk write", errors.Wrap(err, "failed to begin transaction"))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if mode == tablewriter.TriggerModeBypass {
		if _, err := tx.Exec(ctx, tablewriter.BypassTriggersStatement); err != nil {
			return classify("bulk write", errors.Wrap(err, "failed to disable triggers"))
		}
	}

	copied, err := tx.CopyFrom(ctx, identifier(schema.Table), schema.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return classify("bulk write", errors.Wrapf(err, "failed to copy %d rows", len(rows)))
	}
	if int(copied) != len(rows) {
		return tablewriter.NewPermanentError("bulk write",
			errors.Newf("copied %d rows out of %d", copied, len(rows)))
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("bulk write", errors.Wrap(err, "failed to commit batch"))
	}
	committed = true

	l.Debug("batch written",
		slog.String("table", schema.Table),
		slog.Int("rows", len(rows)),
		slog.String("trigger_mode", mode.String()))
	return nil
}

// Close closes the underlying pool.
func (w *PGXTableWriter) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		w.pool.Close()
	}
	return nil
}

func identifier(table string) pgx.Identifier {
	schemaName, tableName := tablewriter.SplitTableName(table)
	if schemaName == "" {
		return pgx.Identifier{tableName}
	}
	return pgx.Identifier{schemaName, tableName}
}

// classify wraps err with the classification of its SQLSTATE, if any.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	code := ""
	if errors.As(err, &pgErr) {
		code = pgErr.Code
	}
	if code == "" && pgconn.SafeToRetry(err) {
		return tablewriter.NewTransientError(op, err)
	}
	return tablewriter.Wrap(op, code, err)
}

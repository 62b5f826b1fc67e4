// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
)

// AuditEngine writes every event synchronously: Emit returns once the row is
// committed, or with the write error. Row triggers always fire.
type AuditEngine struct {
	l       *logger.Logger
	options types.Options
	schema  columns.Schema
	writer  tablewriter.ITableWriter

	// ensureLock serializes table creation; schemaReady short-circuits it.
	ensureLock  sync.Mutex
	schemaReady atomic.Bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ types.IBatchEngine = (*AuditEngine)(nil)

// NewAuditEngine validates the options and builds the column schema. It
// fails with ErrAuditDisableTriggers, before touching the writer, when the
// columns disable triggers. The engine owns writer and closes it on Close.
func NewAuditEngine(
	l *logger.Logger, writer tablewriter.ITableWriter, options types.Options,
) (*AuditEngine, error) {
	if options.Columns.DisableTriggers {
		return nil, types.ConfigurationError(types.ErrAuditDisableTriggers)
	}
	options = options.WithDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}
	schema, err := columns.BuildSchema(options.Table, options.Columns)
	if err != nil {
		return nil, types.ConfigurationError(err)
	}
	if writer == nil {
		return nil, types.ConfigurationError(errors.New("table writer is required"))
	}
	if l == nil {
		l = logger.DefaultLogger
	}

	return &AuditEngine{
		l:       l.With(slog.String("table", schema.Table), slog.String("mode", "audit")),
		options: options,
		schema:  schema,
		writer:  writer,
	}, nil
}

// Schema returns the column schema of the destination table.
func (e *AuditEngine) Schema() columns.Schema {
	return e.schema
}

// Emit writes the event and waits for the commit. A zero timestamp is set to
// the current time. Write failures are returned, classified as
// *tablewriter.WriteError, and never logged by the engine.
func (e *AuditEngine) Emit(ctx context.Context, event events.LogEvent) error {
	return e.EmitBatch(ctx, events.Batch{event})
}

// EmitBatch writes the events in a single transaction and waits for the
// commit. Either all events are written or none.
func (e *AuditEngine) EmitBatch(ctx context.Context, batch events.Batch) error {
	if e.closed.Load() {
		return types.ErrEngineClosed
	}
	if len(batch) == 0 {
		return nil
	}

	now := time.Now()
	stamped := make(events.Batch, len(batch))
	for i, ev := range batch {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		stamped[i] = ev
	}

	ctx, cancel := context.WithTimeout(ctx, e.options.WriteTimeout)
	defer cancel()

	if err := e.ensureSchema(ctx); err != nil {
		return err
	}
	if err := e.writer.BulkWrite(ctx, e.l, stamped, e.schema, tablewriter.TriggerModeFire); err != nil {
		if tablewriter.IsSchemaMismatch(err) {
			e.schemaReady.Store(false)
		}
		return err
	}
	return nil
}

func (e *AuditEngine) ensureSchema(ctx context.Context) error {
	if e.options.SkipTableCreation || e.schemaReady.Load() {
		return nil
	}

	e.ensureLock.Lock()
	defer e.ensureLock.Unlock()
	if e.schemaReady.Load() {
		return nil
	}

	result, err := e.writer.EnsureSchema(ctx, e.l, e.schema)
	if err != nil {
		return err
	}
	e.schemaReady.Store(true)
	if result == tablewriter.SchemaCreated {
		e.l.Info("log table created")
	}
	return nil
}

// Close closes the writer. It is safe to call several times.
func (e *AuditEngine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if err := e.writer.Close(); err != nil {
			e.closeErr = errors.Wrap(err, "failed to close table writer")
		}
	})
	return e.closeErr
}

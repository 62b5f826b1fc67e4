// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
)

// MemTableWriter is an in-memory implementation of the table writer. It
// keeps written rows per table, simulates row-level insert triggers and
// supports fault injection. Suitable for unit tests and local development.
type MemTableWriter struct {
	lock sync.Mutex

	tables   map[string]*memTable
	triggers map[string][]trigger

	failures       []error
	ensureFailures []error
	writeDelay     time.Duration
	writeCalls     int
	ensureCalls    int
	closed         bool
}

type memTable struct {
	columns []string
	rows    []events.LogEvent
	firings int
}

type trigger struct {
	name string
	fn   func(events.LogEvent)
}

var _ tablewriter.ITableWriter = (*MemTableWriter)(nil)

// NewTableWriter creates a new in-memory table writer.
func NewTableWriter() *MemTableWriter {
	return &MemTableWriter{
		tables:   make(map[string]*memTable),
		triggers: make(map[string][]trigger),
	}
}

// EnsureSchema creates the table if absent and checks its columns otherwise.
func (w *MemTableWriter) EnsureSchema(
	ctx context.Context, l *logger.Logger, schema columns.Schema,
) (tablewriter.EnsureResult, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.ensureCalls++
	if w.closed {
		return 0, tablewriter.NewPermanentError("ensure schema", tablewriter.ErrWriterClosed)
	}
	if len(w.ensureFailures) > 0 {
		err := w.ensureFailures[0]
		w.ensureFailures = w.ensureFailures[1:]
		return 0, err
	}

	t, ok := w.tables[schema.Table]
	if !ok {
		w.tables[schema.Table] = &memTable{columns: schema.ColumnNames()}
		return tablewriter.SchemaCreated, nil
	}
	if err := tablewriter.CheckColumns(schema, t.columns); err != nil {
		return 0, err
	}
	return tablewriter.SchemaExists, nil
}

// BulkWrite appends the batch to the table. Triggers created on the table
// run once per row unless mode is TriggerModeBypass.
func (w *MemTableWriter) BulkWrite(
	ctx context.Context,
	l *logger.Logger,
	batch events.Batch,
	schema columns.Schema,
	mode tablewriter.TriggerMode,
) error {
	w.lock.Lock()
	delay := w.writeDelay
	w.writeCalls++
	w.lock.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return tablewriter.NewTransientError("bulk write", errors.Wrap(ctx.Err(), "write interrupted"))
		case <-timer.C:
		}
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return tablewriter.NewPermanentError("bulk write", tablewriter.ErrWriterClosed)
	}
	if err := w.popFailureLocked(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	t, ok := w.tables[schema.Table]
	if !ok {
		return tablewriter.NewSchemaMismatchError("bulk write",
			errors.Wrapf(tablewriter.ErrTableNotFound, "table %s", schema.Table))
	}
	if err := tablewriter.CheckColumns(schema, t.columns); err != nil {
		return err
	}
	// Validate every row first so that a bad row leaves the table untouched.
	if _, err := tablewriter.BatchRows(schema, batch); err != nil {
		return err
	}

	for _, e := range batch {
		t.rows = append(t.rows, e)
		if mode == tablewriter.TriggerModeBypass {
			continue
		}
		for _, tr := range w.triggers[schema.Table] {
			t.firings++
			if tr.fn != nil {
				tr.fn(e)
			}
		}
	}
	return nil
}

// Close marks the writer closed. Stored rows stay readable.
func (w *MemTableWriter) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.closed = true
	return nil
}

// CreateTrigger registers an AFTER INSERT row trigger on a table. fn may be
// nil when only the firing count matters.
func (w *MemTableWriter) CreateTrigger(table, name string, fn func(events.LogEvent)) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.triggers[table] = append(w.triggers[table], trigger{name: name, fn: fn})
}

// TriggerFirings returns how many times triggers fired on a table.
func (w *MemTableWriter) TriggerFirings(table string) int {
	w.lock.Lock()
	defer w.lock.Unlock()
	if t, ok := w.tables[table]; ok {
		return t.firings
	}
	return 0
}

// CreateTable creates a table with arbitrary columns, as if it had been
// created out of band.
func (w *MemTableWriter) CreateTable(table string, columnNames ...string) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.tables[table] = &memTable{columns: columnNames}
}

// DropTable removes a table and its rows.
func (w *MemTableWriter) DropTable(table string) {
	w.lock.Lock()
	defer w.lock.Unlock()
	delete(w.tables, table)
}

// HasTable reports whether a table exists.
func (w *MemTableWriter) HasTable(table string) bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	_, ok := w.tables[table]
	return ok
}

// Rows returns a copy of the rows written to a table, in insertion order.
func (w *MemTableWriter) Rows(table string) []events.LogEvent {
	w.lock.Lock()
	defer w.lock.Unlock()
	t, ok := w.tables[table]
	if !ok {
		return nil
	}
	out := make([]events.LogEvent, len(t.rows))
	copy(out, t.rows)
	return out
}

// InjectFailures makes the next BulkWrite calls fail with the given errors,
// one per call.
func (w *MemTableWriter) InjectFailures(errs ...error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.failures = append(w.failures, errs...)
}

// InjectEnsureFailures makes the next EnsureSchema calls fail with the given
// errors, one per call.
func (w *MemTableWriter) InjectEnsureFailures(errs ...error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.ensureFailures = append(w.ensureFailures, errs...)
}

// SetWriteDelay delays every BulkWrite, honoring context cancellation.
func (w *MemTableWriter) SetWriteDelay(d time.Duration) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.writeDelay = d
}

// WriteCalls returns the number of BulkWrite calls.
func (w *MemTableWriter) WriteCalls() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.writeCalls
}

// EnsureCalls returns the number of EnsureSchema calls.
func (w *MemTableWriter) EnsureCalls() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.ensureCalls
}

func (w *MemTableWriter) popFailureLocked() error {
	if len(w.failures) == 0 {
		return nil
	}
	err := w.failures[0]
	w.failures = w.failures[1:]
	return err
}

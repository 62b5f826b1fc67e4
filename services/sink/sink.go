// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

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
	"github.com/google/uuid"
)

// SinkEngine delivers events asynchronously: Emit enqueues and returns while
// a background scheduler writes batches to the table. Write failures never
// reach producers; they are reported as diagnostics.
type SinkEngine struct {
	id      uuid.UUID
	l       *logger.Logger
	options types.Options
	schema  columns.Schema

	writer    tablewriter.ITableWriter
	buffer    *BatchBuffer
	scheduler *FlushScheduler
	metrics   *metrics

	closed            atomic.Bool
	closeOnce         sync.Once
	closeErr          error
	droppedAfterClose atomic.Uint64
}

var _ types.IEngine = (*SinkEngine)(nil)

// Stats are the cumulative counters of a sink engine.
type Stats struct {
	Buffer BufferStats

	BatchesWritten uint64
	BatchesFailed  uint64
	EventsWritten  uint64
	// EventsDropped counts events dropped after a failed write or on close
	// timeout. Overflow drops are counted in Buffer.Dropped.
	EventsDropped uint64
	// DroppedAfterClose counts events emitted after Close.
	DroppedAfterClose uint64
}

// NewSinkEngine validates the options, builds the column schema and starts
// the flush goroutine. The engine owns writer and closes it on Close.
func NewSinkEngine(
	l *logger.Logger, writer tablewriter.ITableWriter, options types.Options,
) (*SinkEngine, error) {
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

	e := &SinkEngine{
		id:      uuid.New(),
		options: options,
		schema:  schema,
		writer:  writer,
		buffer:  NewBatchBuffer(options.QueueCapacity, options.OverflowPolicy, options.BlockTimeout),
	}
	e.l = l.With(
		slog.String("engine", e.id.String()),
		slog.String("table", schema.Table),
	)
	if options.CollectMetrics {
		e.metrics = newMetrics(e.id, schema.Table)
	}
	e.buffer.SetDropHook(e.overflowed)

	e.scheduler = NewFlushScheduler(e.l, e.buffer, writer, schema, options, e.metrics)
	e.scheduler.Start()

	e.l.Debug("sink engine started",
		slog.Int("batch_posting_limit", options.BatchPostingLimit),
		slog.Duration("period", options.Period),
		slog.Int("queue_capacity", options.QueueCapacity),
		slog.String("overflow_policy", string(options.OverflowPolicy)),
		slog.String("trigger_mode", tablewriter.TriggerModeFor(schema).String()))
	return e, nil
}

// ID returns the engine id, also used as the metrics label.
func (e *SinkEngine) ID() uuid.UUID {
	return e.id
}

// Schema returns the column schema of the destination table.
func (e *SinkEngine) Schema() columns.Schema {
	return e.schema
}

// Emit enqueues the event and always returns nil. A zero timestamp is set to
// the current time. Events emitted after Close are dropped and counted.
func (e *SinkEngine) Emit(ctx context.Context, event events.LogEvent) error {
	if e.closed.Load() {
		e.droppedAfterClose.Add(1)
		e.metrics.dropped(1)
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	n, err := e.buffer.Enqueue(ctx, event)
	switch {
	case errors.Is(err, types.ErrBufferClosed):
		e.droppedAfterClose.Add(1)
		e.metrics.dropped(1)
		return nil
	case err != nil:
		// Rejected by the block policy, already accounted by the drop hook.
		return nil
	}
	e.metrics.enqueued()

	if n >= e.options.BatchPostingLimit {
		e.scheduler.Trigger()
	}
	return nil
}

// Flush writes the pending events now and waits for the write to complete.
func (e *SinkEngine) Flush(ctx context.Context) error {
	if e.closed.Load() {
		return types.ErrEngineClosed
	}
	return e.scheduler.Flush(ctx)
}

// Close stops the scheduler, writes the pending events within the close
// timeout and closes the writer. It is safe to call several times.
func (e *SinkEngine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)

		ctx, cancel := context.WithTimeout(context.Background(), e.options.CloseTimeout)
		defer cancel()

		stopErr := e.scheduler.Stop(ctx)
		e.buffer.Close()
		writerErr := e.writer.Close()
		if writerErr != nil {
			writerErr = errors.Wrap(writerErr, "failed to close table writer")
		}
		e.closeErr = errors.CombineErrors(stopErr, writerErr)

		stats := e.Stats()
		e.l.Debug("sink engine closed",
			slog.Uint64("events_written", stats.EventsWritten),
			slog.Uint64("events_dropped", stats.EventsDropped+stats.Buffer.Dropped))
	})
	return e.closeErr
}

// Stats returns a snapshot of the engine counters.
func (e *SinkEngine) Stats() Stats {
	return Stats{
		Buffer:            e.buffer.Stats(),
		BatchesWritten:    e.scheduler.batchesWritten.Load(),
		BatchesFailed:     e.scheduler.batchesFailed.Load(),
		EventsWritten:     e.scheduler.eventsWritten.Load(),
		EventsDropped:     e.scheduler.eventsDropped.Load(),
		DroppedAfterClose: e.droppedAfterClose.Load(),
	}
}

// Pending returns the number of events waiting to be written.
func (e *SinkEngine) Pending() int {
	return e.buffer.Len()
}

// overflowed is the buffer drop hook. It runs on the producer goroutine, so
// it must not log: the engine may be the destination of its own logger.
func (e *SinkEngine) overflowed(n int) {
	e.metrics.dropped(n)
	if e.options.OnDiagnostic != nil {
		e.options.OnDiagnostic(types.Diagnostic{
			Kind:      types.DiagnosticOverflow,
			BatchSize: n,
			Err:       types.ErrBufferFull,
		})
	}
}

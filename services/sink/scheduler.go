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
)

const (
	stateIdle int32 = iota
	stateFlushing
)

// interruptWait bounds the wait for an interrupted write to return after
// the close timeout.
const interruptWait = time.Second

// FlushScheduler moves events from the buffer to the table writer. Flushes
// run on a single goroutine, started by Start, and are triggered by the
// period timer, by Trigger when a full batch is pending, or by Flush.
type FlushScheduler struct {
	l       *logger.Logger
	buffer  *BatchBuffer
	writer  tablewriter.ITableWriter
	schema  columns.Schema
	mode    tablewriter.TriggerMode
	options types.Options
	metrics *metrics

	state       atomic.Int32
	schemaReady atomic.Bool
	// retryAt is only accessed by the flushing goroutine.
	retryAt time.Time

	trigger  chan struct{}
	requests chan chan struct{}
	stopping chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error

	batchesWritten atomic.Uint64
	batchesFailed  atomic.Uint64
	eventsWritten  atomic.Uint64
	eventsDropped  atomic.Uint64
	// interrupted counts the events of writes cut short by the close timeout.
	interrupted atomic.Uint64
}

// NewFlushScheduler creates a scheduler. options must hold their defaults.
func NewFlushScheduler(
	l *logger.Logger,
	buffer *BatchBuffer,
	writer tablewriter.ITableWriter,
	schema columns.Schema,
	options types.Options,
	m *metrics,
) *FlushScheduler {
	return &FlushScheduler{
		l:        l,
		buffer:   buffer,
		writer:   writer,
		schema:   schema,
		mode:     tablewriter.TriggerModeFor(schema),
		options:  options,
		metrics:  m,
		trigger:  make(chan struct{}, 1),
		requests: make(chan chan struct{}),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the flush goroutine.
func (s *FlushScheduler) Start() {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	go s.run(ctx)
}

// Trigger requests a flush without blocking. Requests made while a flush is
// pending or running coalesce into one.
func (s *FlushScheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Flushing reports whether a flush cycle is running.
func (s *FlushScheduler) Flushing() bool {
	return s.state.Load() == stateFlushing
}

// SchemaReady reports whether the table is known to exist.
func (s *FlushScheduler) SchemaReady() bool {
	return s.schemaReady.Load()
}

// Flush runs a flush cycle and waits for it to complete. It ignores a
// pending retry backoff. Concurrent calls share the same cycle.
func (s *FlushScheduler) Flush(ctx context.Context) error {
	waiter := make(chan struct{})
	select {
	case s.requests <- waiter:
	case <-s.done:
		return types.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *FlushScheduler) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.options.Period)
	defer timer.Stop()

	for {
		var waiters []chan struct{}
		select {
		case <-s.stopping:
			return
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-timer.C:
		case w := <-s.requests:
			waiters = append(waiters, w)
		}
	collect:
		for {
			select {
			case w := <-s.requests:
				waiters = append(waiters, w)
			default:
				break collect
			}
		}

		next := s.flush(ctx, len(waiters) > 0)
		for _, w := range waiters {
			close(w)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)
	}
}

// flush runs a cycle unless a retry backoff is pending, and returns the delay
// before the next periodic flush.
func (s *FlushScheduler) flush(ctx context.Context, force bool) time.Duration {
	if !force && !s.retryAt.IsZero() {
		if wait := time.Until(s.retryAt); wait > 0 {
			return wait
		}
	}
	s.retryAt = time.Time{}

	if s.cycle(ctx) {
		backoff := s.retryBackoff()
		s.retryAt = time.Now().Add(backoff)
		return backoff
	}
	return s.options.Period
}

// cycle writes batches until the buffer is empty. It returns true when a
// transient failure requeued events that should be retried later.
func (s *FlushScheduler) cycle(ctx context.Context) bool {
	if !s.state.CompareAndSwap(stateIdle, stateFlushing) {
		return false
	}
	defer s.state.Store(stateIdle)
	defer func() { s.metrics.setBufferLength(s.buffer.Len()) }()

	for ctx.Err() == nil {
		entries := s.buffer.DrainUpTo(s.options.BatchPostingLimit)
		if len(entries) == 0 {
			return false
		}
		err := s.writeBatch(ctx, entries)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			s.interrupt(entries, err)
			return false
		}
		if s.handleFailure(entries, err) {
			return true
		}
	}
	return false
}

func (s *FlushScheduler) writeBatch(ctx context.Context, entries []entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.options.WriteTimeout)
	defer cancel()

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	batch := make(events.Batch, len(entries))
	for i, e := range entries {
		batch[i] = e.event
	}
	if err := s.writer.BulkWrite(ctx, s.l, batch, s.schema, s.mode); err != nil {
		return err
	}

	s.batchesWritten.Add(1)
	s.eventsWritten.Add(uint64(len(batch)))
	s.metrics.written(len(batch))
	return nil
}

func (s *FlushScheduler) ensureSchema(ctx context.Context) error {
	if s.options.SkipTableCreation || s.schemaReady.Load() {
		return nil
	}
	result, err := s.writer.EnsureSchema(ctx, s.l, s.schema)
	if err != nil {
		return err
	}
	s.schemaReady.Store(true)
	if result == tablewriter.SchemaCreated {
		s.l.Info("log table created")
	}
	return nil
}

// handleFailure requeues or drops the entries of a failed batch. It returns
// true when entries were requeued for a retry.
func (s *FlushScheduler) handleFailure(entries []entry, err error) bool {
	kind := tablewriter.Classify(err)
	s.batchesFailed.Add(1)
	s.metrics.failed(kind)

	attempts := 0
	for i := range entries {
		entries[i].attempts++
		if entries[i].attempts > attempts {
			attempts = entries[i].attempts
		}
	}

	switch kind {
	case tablewriter.FailureTransient:
		retry := make([]entry, 0, len(entries))
		exhausted := 0
		for _, e := range entries {
			if e.attempts > s.options.RetryCount {
				exhausted++
				continue
			}
			retry = append(retry, e)
		}
		if exhausted > 0 {
			s.drop(types.Diagnostic{
				Kind:      types.DiagnosticRetriesExhausted,
				BatchSize: exhausted,
				Attempts:  attempts,
				Err:       err,
			})
		}
		if len(retry) == 0 {
			return false
		}
		s.buffer.Requeue(retry)
		s.l.Warn("batch write failed, retrying",
			slog.Int("batch_size", len(retry)),
			slog.Duration("backoff", s.retryBackoff()),
			slog.Any("error", err))
		return true

	case tablewriter.FailureSchemaMismatch:
		s.schemaReady.Store(false)
		s.drop(types.Diagnostic{
			Kind:      types.DiagnosticSchemaMismatch,
			BatchSize: len(entries),
			Attempts:  attempts,
			Err:       err,
		})

	default:
		s.drop(types.Diagnostic{
			Kind:      types.DiagnosticPermanentFailure,
			BatchSize: len(entries),
			Attempts:  attempts,
			Err:       err,
		})
	}
	return false
}

// interrupt drops the entries of a write cut short by the close timeout.
// They are never requeued: the buffer is no longer drained.
func (s *FlushScheduler) interrupt(entries []entry, err error) {
	s.batchesFailed.Add(1)
	s.metrics.failed(tablewriter.FailureTransient)
	s.interrupted.Add(uint64(len(entries)))

	attempts := 0
	for _, e := range entries {
		attempts = max(attempts, e.attempts+1)
	}
	s.drop(types.Diagnostic{
		Kind:      types.DiagnosticCloseTimeout,
		BatchSize: len(entries),
		Attempts:  attempts,
		Err:       errors.Wrap(err, "write interrupted by close"),
	})
}

// drop accounts for events lost after a write failure and reports them.
func (s *FlushScheduler) drop(d types.Diagnostic) {
	s.eventsDropped.Add(uint64(d.BatchSize))
	s.metrics.dropped(d.BatchSize)
	s.diagnose(d)
}

func (s *FlushScheduler) diagnose(d types.Diagnostic) {
	s.l.Error("log events dropped",
		slog.String("failure", string(d.Kind)),
		slog.Int("batch_size", d.BatchSize),
		slog.Int("attempts", d.Attempts),
		slog.Any("error", d.Err))
	if s.options.OnDiagnostic != nil {
		s.options.OnDiagnostic(d)
	}
}

func (s *FlushScheduler) retryBackoff() time.Duration {
	return min(s.options.RetryBackoff, s.options.Period)
}

// Stop ends the flush goroutine, waits for the running flush and writes the
// pending events until the buffer is empty or ctx is done. Events still
// pending when ctx is done are dropped and ErrCloseTimeout is returned.
func (s *FlushScheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *FlushScheduler) stop(ctx context.Context) error {
	close(s.stopping)
	select {
	case <-s.done:
	case <-ctx.Done():
		// Interrupt the running write. Its events are dropped by the flush
		// goroutine, the rest of the buffer below.
		s.cancel()
		timer := time.NewTimer(interruptWait)
		select {
		case <-s.done:
		case <-timer.C:
			s.l.Warn("flush did not return after close timeout",
				slog.Duration("wait", interruptWait))
		}
		timer.Stop()
		return s.dropPending(ctx.Err())
	}
	defer s.cancel()

	s.retryAt = time.Time{}
	for {
		retry := s.cycle(ctx)
		if ctx.Err() != nil {
			return s.dropPending(ctx.Err())
		}
		if !retry {
			return nil
		}

		timer := time.NewTimer(s.retryBackoff())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return s.dropPending(ctx.Err())
		}
	}
}

func (s *FlushScheduler) dropPending(cause error) error {
	n := s.buffer.DropAll()
	err := errors.Wrapf(types.ErrCloseTimeout, "%d event(s) dropped",
		uint64(n)+s.interrupted.Load())
	if n > 0 {
		s.drop(types.Diagnostic{
			Kind:      types.DiagnosticCloseTimeout,
			BatchSize: n,
			Err:       errors.WithSecondaryError(err, cause),
		})
	}
	return err
}

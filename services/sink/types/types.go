// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package types

import (
	"context"
	"fmt"
	"time"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/cockroachdb/errors"
)

const (
	PROMETHEUS_NAMESPACE = "sqlsink"
)

var (
	// DefaultBatchPostingLimit is the default maximum number of events per batch.
	DefaultBatchPostingLimit = 50
	// DefaultPeriod is the default time between two periodic flushes.
	DefaultPeriod = 5 * time.Second
	// DefaultQueueCapacity is the default number of events the buffer holds.
	DefaultQueueCapacity = 10000
	// DefaultBlockTimeout is how long a producer waits for space under the
	// block overflow policy.
	DefaultBlockTimeout = time.Second
	// DefaultRetryBackoff is the default delay before retrying a failed batch.
	DefaultRetryBackoff = time.Second
	// DefaultWriteTimeout bounds a single bulk write.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultCloseTimeout bounds the final flush on close.
	DefaultCloseTimeout = 10 * time.Second
)

var (
	// ErrConfiguration marks every error returned by engine construction.
	ErrConfiguration = fmt.Errorf("invalid engine configuration")
	// ErrAuditDisableTriggers is returned when an audit engine is configured
	// with DisableTriggers, which audit writes cannot honor.
	ErrAuditDisableTriggers = fmt.Errorf("disabling triggers is not supported in audit mode")
	// ErrBufferFull is the error returned when an event is rejected because
	// the buffer stayed full for the whole block timeout.
	ErrBufferFull = fmt.Errorf("buffer full")
	// ErrBufferClosed is the error returned by a closed buffer.
	ErrBufferClosed = fmt.Errorf("buffer closed")
	// ErrCloseTimeout is returned when pending events could not be written
	// before the close timeout.
	ErrCloseTimeout = fmt.Errorf("close timeout, pending events dropped")
	// ErrEngineClosed is returned by an engine used after Close.
	ErrEngineClosed = fmt.Errorf("engine closed")
)

// IEngine is the capability shared by the sink and audit engines.
type IEngine interface {
	// Emit delivers one event. Sink engines enqueue and return nil; audit
	// engines return once the event is committed or the write failed.
	Emit(context.Context, events.LogEvent) error
	// Close flushes what can be flushed and releases the engine.
	Close() error
}

// IBatchEngine is implemented by engines that write a batch synchronously,
// in a single transaction.
type IBatchEngine interface {
	IEngine
	EmitBatch(context.Context, events.Batch) error
}

// OverflowPolicy tells the buffer what to do when it is full.
type OverflowPolicy string

const (
	// OverflowDropOldest evicts the oldest pending event.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
	// OverflowBlock makes producers wait for space, up to a timeout.
	OverflowBlock OverflowPolicy = "block"
)

// ParseOverflowPolicy parses a policy name. Empty means drop-oldest.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", OverflowDropOldest:
		return OverflowDropOldest, nil
	case OverflowBlock:
		return OverflowBlock, nil
	}
	return "", errors.Newf("unknown overflow policy %q", s)
}

// DiagnosticKind identifies why events were lost.
type DiagnosticKind string

const (
	DiagnosticRetriesExhausted DiagnosticKind = "retries-exhausted"
	DiagnosticSchemaMismatch   DiagnosticKind = "schema-mismatch"
	DiagnosticPermanentFailure DiagnosticKind = "permanent-failure"
	DiagnosticOverflow         DiagnosticKind = "overflow"
	DiagnosticCloseTimeout     DiagnosticKind = "close-timeout"
)

// Diagnostic describes events dropped by a sink engine.
type Diagnostic struct {
	Kind      DiagnosticKind
	BatchSize int
	Attempts  int
	Err       error
}

func (d Diagnostic) String() string {
	if d.Err == nil {
		return fmt.Sprintf("%s: %d event(s) dropped", d.Kind, d.BatchSize)
	}
	return fmt.Sprintf("%s: %d event(s) dropped after %d attempt(s): %v",
		d.Kind, d.BatchSize, d.Attempts, d.Err)
}

// Options contains the configuration of an engine.
type Options struct {
	// Table is the destination table, optionally schema-qualified.
	Table string
	// Columns configures the columns of the destination table.
	Columns columns.ColumnOptions

	// BatchPostingLimit is the maximum number of events written per batch.
	// Reaching it in the buffer triggers a flush.
	BatchPostingLimit int
	// Period is the time between two periodic flushes.
	Period time.Duration
	// QueueCapacity bounds the number of pending events.
	QueueCapacity int
	// OverflowPolicy applies when the buffer is full.
	OverflowPolicy OverflowPolicy
	// BlockTimeout is how long producers wait under OverflowBlock.
	BlockTimeout time.Duration

	// RetryCount is the number of retries of a transient failure before the
	// events are dropped. Zero disables retries.
	RetryCount int
	// RetryBackoff is the delay before a retry, bounded by Period.
	RetryBackoff time.Duration
	// WriteTimeout bounds a single bulk write.
	WriteTimeout time.Duration
	// CloseTimeout bounds the final flush on Close.
	CloseTimeout time.Duration

	// SkipTableCreation assumes the table exists and never runs DDL.
	SkipTableCreation bool
	// CollectMetrics is a flag to enable metrics collection.
	CollectMetrics bool
	// OnDiagnostic is called every time events are dropped, from the
	// goroutine that dropped them. It must not block.
	OnDiagnostic func(Diagnostic)
}

// WithDefaults returns a copy of the options where every zero field holds
// its default value.
func (o Options) WithDefaults() Options {
	if o.BatchPostingLimit == 0 {
		o.BatchPostingLimit = DefaultBatchPostingLimit
	}
	if o.Period == 0 {
		o.Period = DefaultPeriod
	}
	if o.QueueCapacity == 0 {
		o.QueueCapacity = DefaultQueueCapacity
		if o.QueueCapacity < o.BatchPostingLimit {
			o.QueueCapacity = o.BatchPostingLimit
		}
	}
	if o.OverflowPolicy == "" {
		o.OverflowPolicy = OverflowDropOldest
	}
	if o.BlockTimeout == 0 {
		o.BlockTimeout = DefaultBlockTimeout
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.CloseTimeout == 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	return o
}

// Validate checks options that already hold their defaults. Every returned
// error wraps ErrConfiguration.
func (o Options) Validate() error {
	var err error
	switch {
	case o.Table == "":
		err = errors.New("table name is required")
	case o.BatchPostingLimit <= 0:
		err = errors.Newf("batch posting limit must be positive, got %d", o.BatchPostingLimit)
	case o.Period <= 0:
		err = errors.Newf("period must be positive, got %s", o.Period)
	case o.QueueCapacity < o.BatchPostingLimit:
		err = errors.Newf("queue capacity %d is lower than the batch posting limit %d",
			o.QueueCapacity, o.BatchPostingLimit)
	case o.OverflowPolicy != OverflowDropOldest && o.OverflowPolicy != OverflowBlock:
		err = errors.Newf("unknown overflow policy %q", o.OverflowPolicy)
	case o.RetryCount < 0:
		err = errors.Newf("retry count must not be negative, got %d", o.RetryCount)
	case o.BlockTimeout < 0 || o.RetryBackoff < 0 || o.WriteTimeout < 0 || o.CloseTimeout < 0:
		err = errors.New("timeouts must not be negative")
	}
	if err != nil {
		return ConfigurationError(err)
	}
	return nil
}

// ConfigurationError wraps both ErrConfiguration and err.
func ConfigurationError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

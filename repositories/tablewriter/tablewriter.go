// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tablewriter

import (
	"context"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/utils/logger"
)

// TriggerMode selects whether a bulk write fires row-level triggers on the
// destination table.
type TriggerMode int

const (
	// TriggerModeFire uses a regular transactional write; row triggers fire.
	TriggerModeFire TriggerMode = iota
	// TriggerModeBypass uses a write path that skips row-level triggers.
	TriggerModeBypass
)

func (m TriggerMode) String() string {
	if m == TriggerModeBypass {
		return "bypass"
	}
	return "fire"
}

// TriggerModeFor returns the write mode matching a schema's configuration.
func TriggerModeFor(s columns.Schema) TriggerMode {
	if s.DisableTriggers {
		return TriggerModeBypass
	}
	return TriggerModeFire
}

// EnsureResult tells whether EnsureSchema created the table.
type EnsureResult int

const (
	SchemaExists EnsureResult = iota
	SchemaCreated
)

func (r EnsureResult) String() string {
	if r == SchemaCreated {
		return "created"
	}
	return "exists"
}

// ITableWriter is the storage boundary of the delivery engines: it creates
// the log table and writes batches to it. Implementations must be safe for
// concurrent use.
type ITableWriter interface {
	// EnsureSchema creates the table if it is absent. An existing table whose
	// columns disagree with the schema yields a schema-mismatch WriteError.
	EnsureSchema(context.Context, *logger.Logger, columns.Schema) (EnsureResult, error)
	// BulkWrite inserts the batch in a single transaction, preserving order.
	// Failures are returned as *WriteError.
	BulkWrite(context.Context, *logger.Logger, events.Batch, columns.Schema, TriggerMode) error
	// Close releases the writer's resources.
	Close() error
}

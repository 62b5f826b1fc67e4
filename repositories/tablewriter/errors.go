// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tablewriter

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/cockroachdb/errors"
)

// FailureKind classifies a failed write.
type FailureKind int

const (
	// FailureTransient failures may succeed when retried.
	FailureTransient FailureKind = iota + 1
	// FailureSchemaMismatch means the table disagrees with the configured
	// schema. Retrying will not help.
	FailureSchemaMismatch
	// FailurePermanent failures will not succeed when retried.
	FailurePermanent
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureSchemaMismatch:
		return "schema-mismatch"
	case FailurePermanent:
		return "permanent"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

var (
	// ErrTableNotFound is wrapped by schema-mismatch errors raised when the
	// table is missing and is not to be created.
	ErrTableNotFound = errors.New("log table not found")
	// ErrWriterClosed is returned by writers used after Close.
	ErrWriterClosed = errors.New("table writer closed")
)

// WriteError is a classified storage failure.
type WriteError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable failure.
func NewTransientError(op string, err error) *WriteError {
	return &WriteError{Kind: FailureTransient, Op: op, Err: err}
}

// NewSchemaMismatchError wraps err as a schema-mismatch failure.
func NewSchemaMismatchError(op string, err error) *WriteError {
	return &WriteError{Kind: FailureSchemaMismatch, Op: op, Err: err}
}

// NewPermanentError wraps err as a non-retryable failure.
func NewPermanentError(op string, err error) *WriteError {
	return &WriteError{Kind: FailurePermanent, Op: op, Err: err}
}

// Classify returns the failure kind of err. Errors that carry no
// classification are inspected for well-known transient conditions and are
// otherwise considered permanent.
func Classify(err error) FailureKind {
	if err == nil {
		return 0
	}
	var we *WriteError
	if errors.As(err, &we) {
		return we.Kind
	}
	if isTransientCondition(err) {
		return FailureTransient
	}
	return FailurePermanent
}

// IsTransient reports whether err is a retryable failure.
func IsTransient(err error) bool { return Classify(err) == FailureTransient }

// IsSchemaMismatch reports whether err is a schema-mismatch failure.
func IsSchemaMismatch(err error) bool { return Classify(err) == FailureSchemaMismatch }

// Wrap classifies a raw driver error using its SQLSTATE code (empty when the
// error did not come from the server) and wraps it as a *WriteError.
func Wrap(op string, sqlState string, err error) *WriteError {
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		return we
	}
	kind := ClassifySQLState(sqlState)
	if sqlState == "" && isTransientCondition(err) {
		kind = FailureTransient
	}
	return &WriteError{Kind: kind, Op: op, Err: err}
}

// ClassifySQLState maps a PostgreSQL SQLSTATE code onto a failure kind.
func ClassifySQLState(code string) FailureKind {
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available
		"57P01", // admin_shutdown
		"57P02", // crash_shutdown
		"57P03", // cannot_connect_now
		"57014": // query_canceled
		return FailureTransient
	case "42P01", // undefined_table
		"42703", // undefined_column
		"42804", // datatype_mismatch
		"42P10", // invalid_column_reference
		"3F000": // invalid_schema_name
		return FailureSchemaMismatch
	}
	if strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") {
		// connection_exception, insufficient_resources
		return FailureTransient
	}
	return FailurePermanent
}

func isTransientCondition(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

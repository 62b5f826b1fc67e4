// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tablewriter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySQLState(t *testing.T) {
	tests := []struct {
		code string
		want FailureKind
	}{
		{code: "40001", want: FailureTransient},
		{code: "40P01", want: FailureTransient},
		{code: "08006", want: FailureTransient},
		{code: "53300", want: FailureTransient},
		{code: "57P01", want: FailureTransient},
		{code: "42P01", want: FailureSchemaMismatch},
		{code: "42703", want: FailureSchemaMismatch},
		{code: "23505", want: FailurePermanent},
		{code: "22P02", want: FailurePermanent},
		{code: "", want: FailurePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySQLState(tt.code))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureKind(0), Classify(nil))
	assert.Equal(t, FailureTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, FailurePermanent, Classify(fmt.Errorf("boom")))

	wrapped := errors.Wrap(NewSchemaMismatchError("write", fmt.Errorf("x")), "flush")
	assert.Equal(t, FailureSchemaMismatch, Classify(wrapped))
	assert.True(t, IsSchemaMismatch(wrapped))
	assert.True(t, IsTransient(NewTransientError("write", fmt.Errorf("x"))))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap("write", "", nil))

	we := Wrap("write", "42P01", fmt.Errorf("relation does not exist"))
	assert.Equal(t, FailureSchemaMismatch, we.Kind)
	assert.Contains(t, we.Error(), "write schema-mismatch failure")

	we = Wrap("write", "", errors.Wrap(context.DeadlineExceeded, "copy"))
	assert.Equal(t, FailureTransient, we.Kind)

	orig := NewPermanentError("map row", fmt.Errorf("bad"))
	assert.Same(t, orig, Wrap("write", "40001", orig))
}

func TestCreateTableStatement(t *testing.T) {
	s, err := columns.BuildSchema("logs", columns.ColumnOptions{
		Store:             []columns.StandardColumn{columns.ColumnID, columns.ColumnMessage, columns.ColumnTimeStamp},
		AdditionalColumns: []columns.Column{{Name: "UserName", DataType: "VARCHAR(64)"}},
	})
	require.NoError(t, err)

	want := `CREATE TABLE IF NOT EXISTS "logs" (
    "Id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    "Message" TEXT NULL,
    "TimeStamp" TIMESTAMPTZ NOT NULL,
    "UserName" VARCHAR(64) NOT NULL
)`
	assert.Equal(t, want, CreateTableStatement(s))
}

func TestInsertStatement(t *testing.T) {
	s, err := columns.BuildSchema("app.logs", columns.ColumnOptions{
		Store: []columns.StandardColumn{columns.ColumnMessage, columns.ColumnLevel},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`INSERT INTO "app"."logs" ("Message", "Level") VALUES ($1, $2), ($3, $4)`,
		InsertStatement(s, 2),
	)
}

func TestCheckColumns(t *testing.T) {
	s, err := columns.BuildSchema("logs", columns.ColumnOptions{})
	require.NoError(t, err)

	require.NoError(t, CheckColumns(s, []string{
		"Id", "Message", "MessageTemplate", "Level", "TimeStamp", "Exception", "Properties", "Extra",
	}))

	err = CheckColumns(s, []string{"Id", "Message"})
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
	assert.Contains(t, err.Error(), "Exception, Level, MessageTemplate, Properties, TimeStamp")
}

func TestRowValues(t *testing.T) {
	s, err := columns.BuildSchema("logs", columns.ColumnOptions{
		TimeStampUTC:                true,
		ExcludeAdditionalProperties: true,
		AdditionalColumns: []columns.Column{
			{Name: "UserId", DataType: "TEXT", AllowNull: true, PropertyName: "user_id"},
		},
	})
	require.NoError(t, err)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	row, err := RowValues(s, events.LogEvent{
		Timestamp:       ts,
		Level:           events.LevelWarning,
		MessageTemplate: "user {user_id} logged in",
		Message:         "user 42 logged in",
		Properties:      map[string]any{"user_id": 42, "ip": "10.0.0.1"},
	})
	require.NoError(t, err)

	// Message, MessageTemplate, Level, TimeStamp, Exception, Properties, UserId
	require.Len(t, row, 7)
	assert.Equal(t, "user 42 logged in", row[0])
	assert.Equal(t, "user {user_id} logged in", row[1])
	assert.Equal(t, "Warning", row[2])
	assert.Equal(t, ts.UTC(), row[3])
	assert.Nil(t, row[4])
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, row[5].(string))
	assert.Equal(t, "42", row[6])
}

func TestRowValues_MandatoryColumn(t *testing.T) {
	s, err := columns.BuildSchema("logs", columns.ColumnOptions{
		AdditionalColumns: []columns.Column{{Name: "Tenant"}},
	})
	require.NoError(t, err)

	_, err = RowValues(s, events.LogEvent{Timestamp: time.Now(), Message: "m"})
	require.Error(t, err)
	assert.Equal(t, FailurePermanent, Classify(err))

	_, err = RowValues(s, events.LogEvent{Message: "no timestamp", Properties: map[string]any{"Tenant": "t"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TimeStamp")
}

func TestTriggerModeFor(t *testing.T) {
	assert.Equal(t, TriggerModeFire, TriggerModeFor(columns.Schema{}))
	assert.Equal(t, TriggerModeBypass, TriggerModeFor(columns.Schema{DisableTriggers: true}))
	assert.Equal(t, "bypass", TriggerModeBypass.String())
}

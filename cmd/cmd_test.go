// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Xorcist77/sqlsink/config"
	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter/memory"
	"github.com/Xorcist77/sqlsink/services/audit"
	"github.com/Xorcist77/sqlsink/services/sink"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/ingest"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSchema(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Table = "app.logs"
	cfg.Engine.Store = []string{"Message", "TimeStamp"}
	cfg.Engine.AdditionalColumns = []columns.Column{{Name: "UserId", DataType: "BIGINT", AllowNull: true}}

	var out bytes.Buffer
	schema, err := writeSchema(&out, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Message", "TimeStamp", "UserId"}, schema.ColumnNames())

	ddl := out.String()
	assert.True(t, strings.HasPrefix(ddl, `CREATE TABLE IF NOT EXISTS "app"."logs" (`))
	assert.Contains(t, ddl, `"TimeStamp" TIMESTAMPTZ NOT NULL`)
	assert.Contains(t, ddl, `"UserId" BIGINT NULL`)
	assert.True(t, strings.HasSuffix(ddl, ");\n"))

	cfg.Engine.Store = []string{"Nope"}
	_, err = writeSchema(&out, cfg)
	assert.ErrorIs(t, err, columns.ErrInvalidColumnOptions)
}

func TestSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"schema", "--table", "cli_logs"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `CREATE TABLE IF NOT EXISTS "cli_logs"`)
}

func TestIngestStream_Audit(t *testing.T) {
	w := memory.NewTableWriter()
	engine, err := audit.NewAuditEngine(logger.DefaultLogger, w, types.Options{Table: "ingested"})
	require.NoError(t, err)
	defer engine.Close()

	input := "{\"message\": \"one\"}\n\n{\"message\": \"two\", \"level\": \"error\"}\n"
	n, err := ingestStream(context.Background(), strings.NewReader(input), engine, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := w.Rows("ingested")
	require.Len(t, rows, 2)
	assert.Equal(t, "one", rows[0].Message)
	assert.Equal(t, "two", rows[1].Message)
}

func TestIngestStream_SinkFlushedOnClose(t *testing.T) {
	w := memory.NewTableWriter()
	engine, err := sink.NewSinkEngine(logger.DefaultLogger, w, types.Options{
		Table:  "ingested",
		Period: time.Hour,
	})
	require.NoError(t, err)

	var input strings.Builder
	for i := 0; i < 120; i++ {
		input.WriteString(`{"message": "m"}` + "\n")
	}
	n, err := ingestStream(context.Background(), strings.NewReader(input.String()), engine, 0)
	require.NoError(t, err)
	assert.Equal(t, 120, n)

	require.NoError(t, engine.Close())
	assert.Len(t, w.Rows("ingested"), 120)
}

func TestIngestStream_StopsOnInvalidLine(t *testing.T) {
	w := memory.NewTableWriter()
	engine, err := audit.NewAuditEngine(logger.DefaultLogger, w, types.Options{Table: "ingested"})
	require.NoError(t, err)
	defer engine.Close()

	n, err := ingestStream(context.Background(),
		strings.NewReader("{\"message\": \"ok\"}\n{broken\n{\"message\": \"never\"}\n"), engine, 0)
	assert.True(t, errors.Is(err, ingest.ErrInvalidEvent))
	assert.ErrorContains(t, err, "after 1 event(s)")
	assert.Equal(t, 1, n)
	assert.Len(t, w.Rows("ingested"), 1)
}

// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log:
  level: debug
database:
  type: pq
  url: postgres://localhost/logs
  max_rows_per_statement: 100
engine:
  mode: sink
  table: app.events
  store: [Message, Level, TimeStamp, LogEvent]
  additional_columns:
    - name: RequestId
      type: TEXT
      nullable: true
      property: request_id
  disable_triggers: true
  batch_posting_limit: 200
  period: 2s
  overflow_policy: block
  retry_count: 5
api:
  port: 9000
  metrics:
    port: 9001
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlagSet(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, AddFlagsToFlagSet(fs))
	return fs
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DatabaseTypePQ, cfg.Database.Type)
	assert.Equal(t, 100, cfg.Database.MaxRowsPerStatement)
	assert.Equal(t, "app.events", cfg.Engine.Table)
	assert.Equal(t, []string{"Message", "Level", "TimeStamp", "LogEvent"}, cfg.Engine.Store)
	require.Len(t, cfg.Engine.AdditionalColumns, 1)
	assert.Equal(t, columns.Column{
		Name: "RequestId", DataType: "TEXT", AllowNull: true, PropertyName: "request_id",
	}, cfg.Engine.AdditionalColumns[0])
	assert.Equal(t, 2*time.Second, cfg.Engine.Period)
	assert.Equal(t, 5, cfg.Engine.RetryCount)
	assert.Equal(t, 9000, cfg.Api.Port)

	// Omitted fields keep their default.
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, types.DefaultCloseTimeout, cfg.Engine.CloseTimeout)
	assert.True(t, cfg.Api.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "engine: [not, a, map]"))
	assert.ErrorContains(t, err, "parse config")
}

func TestEngineOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, "app.events", opts.Table)
	assert.Equal(t, []columns.StandardColumn{
		columns.ColumnMessage, columns.ColumnLevel, columns.ColumnTimeStamp, columns.ColumnLogEvent,
	}, opts.Columns.Store)
	assert.True(t, opts.Columns.DisableTriggers)
	assert.Equal(t, 200, opts.BatchPostingLimit)
	assert.Equal(t, types.OverflowBlock, opts.OverflowPolicy)
	assert.True(t, opts.CollectMetrics)

	cfg.Engine.OverflowPolicy = "spill"
	_, err = cfg.EngineOptions()
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory needs no url", mutate: func(c *Config) { c.Database.Type = DatabaseTypeMemory }},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log level"},
		{name: "missing url", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: "database.url"},
		{name: "unknown database", mutate: func(c *Config) { c.Database.Type = "sqlite" }, wantErr: "unsupported database type"},
		{name: "unknown mode", mutate: func(c *Config) { c.Engine.Mode = "fire-and-forget" }, wantErr: "engine mode"},
		{
			name:    "audit with disabled triggers",
			mutate:  func(c *Config) { c.Engine.Mode = ModeAudit; c.Engine.DisableTriggers = true },
			wantErr: "disabling triggers",
		},
		{
			name:    "audit with logs to table",
			mutate:  func(c *Config) { c.Engine.Mode = ModeAudit; c.Log.ToTable = true },
			wantErr: "log.to_table",
		},
		{name: "bad api port", mutate: func(c *Config) { c.Api.Port = 0 }, wantErr: "api port"},
		{name: "same ports", mutate: func(c *Config) { c.Api.Metrics.Port = c.Api.Port }, wantErr: "must differ"},
		{name: "metrics disabled ignores port", mutate: func(c *Config) {
			c.Api.Metrics.Enabled = false
			c.Api.Metrics.Port = 0
		}},
		{name: "empty table", mutate: func(c *Config) { c.Engine.Table = "" }, wantErr: "table name"},
		{name: "negative retries", mutate: func(c *Config) { c.Engine.RetryCount = -1 }, wantErr: "retry count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://localhost/logs"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestInitConfigWithFlagSet(t *testing.T) {
	path := writeConfig(t, testConfig)
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{
		"--config", path,
		"--table", "override",
		"--period", "250ms",
		"--api-metrics-enabled=false",
	}))

	cfg, err := InitConfigWithFlagSet(fs)
	require.NoError(t, err)

	// Flags win over the file.
	assert.Equal(t, "override", cfg.Engine.Table)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Period)
	assert.False(t, cfg.Api.Metrics.Enabled)
	// Unset flags leave the file values alone.
	assert.Equal(t, 200, cfg.Engine.BatchPostingLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitConfigWithFlagSet_Env(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://env/logs")

	cfg, err := InitConfigWithFlagSet(newFlagSet(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/logs", cfg.Database.URL)

	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--database-url", "postgres://flag/logs"}))
	cfg, err = InitConfigWithFlagSet(fs)
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/logs", cfg.Database.URL)
}

func TestInitConfigWithFlagSet_Invalid(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--database-type", "memory", "--mode", "audit", "--disable-triggers"}))

	_, err := InitConfigWithFlagSet(fs)
	assert.ErrorIs(t, err, types.ErrAuditDisableTriggers)
}

func TestAddFlagsToFlagSet_Twice(t *testing.T) {
	fs := newFlagSet(t)
	assert.Error(t, AddFlagsToFlagSet(fs))
}

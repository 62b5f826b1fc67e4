// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
)

// Flag names. Every flag overrides the matching YAML field.
const (
	FlagConfig = "config"

	FlagLogLevel   = "log-level"
	FlagLogToTable = "log-to-table"

	FlagDatabaseType                = "database-type"
	FlagDatabaseURL                 = "database-url"
	FlagDatabaseMaxConns            = "database-max-conns"
	FlagDatabaseMaxIdleTime         = "database-max-idle-time"
	FlagDatabaseMaxRowsPerStatement = "database-max-rows-per-statement"

	FlagEngineMode                        = "mode"
	FlagEngineTable                       = "table"
	FlagEngineStore                       = "store"
	FlagEngineDisableTriggers             = "disable-triggers"
	FlagEngineTimeStampUTC                = "timestamp-utc"
	FlagEngineExcludeAdditionalProperties = "exclude-additional-properties"
	FlagEngineBatchPostingLimit           = "batch-posting-limit"
	FlagEnginePeriod                      = "period"
	FlagEngineQueueCapacity               = "queue-capacity"
	FlagEngineOverflowPolicy              = "overflow-policy"
	FlagEngineBlockTimeout                = "block-timeout"
	FlagEngineRetryCount                  = "retry-count"
	FlagEngineRetryBackoff                = "retry-backoff"
	FlagEngineWriteTimeout                = "write-timeout"
	FlagEngineCloseTimeout                = "close-timeout"
	FlagEngineSkipTableCreation           = "skip-table-creation"

	FlagApiPort           = "api-port"
	FlagApiBasePath       = "api-base-path"
	FlagApiMaxBodySize    = "api-max-body-size"
	FlagApiMetricsEnabled = "api-metrics-enabled"
	FlagApiMetricsPort    = "api-metrics-port"
)

// AddFlagsToFlagSet registers every configuration flag on fs, with the
// defaults as default values.
func AddFlagsToFlagSet(fs *pflag.FlagSet) error {
	if fs.Lookup(FlagConfig) != nil {
		return errors.Newf("flag --%s is already defined", FlagConfig)
	}
	d := Default()

	fs.String(FlagConfig, "", "path to a YAML configuration file")

	fs.String(FlagLogLevel, d.Log.Level, "log level (debug, info, warn, error)")
	fs.Bool(FlagLogToTable, d.Log.ToTable, "also write the process logs to the log table (sink mode only)")

	fs.String(FlagDatabaseType, d.Database.Type, "database writer (postgres, pq, memory)")
	fs.String(FlagDatabaseURL, d.Database.URL, "database connection URL (env "+EnvDatabaseURL+")")
	fs.Int(FlagDatabaseMaxConns, d.Database.MaxConns, "maximum number of open connections")
	fs.Int(FlagDatabaseMaxIdleTime, d.Database.MaxIdleTime, "maximum connection idle time in seconds")
	fs.Int(FlagDatabaseMaxRowsPerStatement, d.Database.MaxRowsPerStatement,
		"maximum rows per INSERT statement (pq writer)")

	fs.String(FlagEngineMode, d.Engine.Mode, "delivery mode (sink, audit)")
	fs.String(FlagEngineTable, d.Engine.Table, "destination table, optionally schema-qualified")
	fs.StringSlice(FlagEngineStore, d.Engine.Store, "standard columns to store (default: all but LogEvent)")
	fs.Bool(FlagEngineDisableTriggers, d.Engine.DisableTriggers, "bypass row-level triggers (sink mode only)")
	fs.Bool(FlagEngineTimeStampUTC, d.Engine.TimeStampUTC, "store timestamps in UTC")
	fs.Bool(FlagEngineExcludeAdditionalProperties, d.Engine.ExcludeAdditionalProperties,
		"omit properties stored in additional columns from the Properties column")
	fs.Int(FlagEngineBatchPostingLimit, d.Engine.BatchPostingLimit, "maximum number of events per batch")
	fs.Duration(FlagEnginePeriod, d.Engine.Period, "time between periodic flushes")
	fs.Int(FlagEngineQueueCapacity, d.Engine.QueueCapacity, "maximum number of pending events")
	fs.String(FlagEngineOverflowPolicy, d.Engine.OverflowPolicy, "full buffer policy (drop-oldest, block)")
	fs.Duration(FlagEngineBlockTimeout, d.Engine.BlockTimeout, "producer wait under the block policy")
	fs.Int(FlagEngineRetryCount, d.Engine.RetryCount, "retries of a transiently failed batch")
	fs.Duration(FlagEngineRetryBackoff, d.Engine.RetryBackoff, "delay before a retry")
	fs.Duration(FlagEngineWriteTimeout, d.Engine.WriteTimeout, "timeout of a single bulk write")
	fs.Duration(FlagEngineCloseTimeout, d.Engine.CloseTimeout, "timeout of the final flush on shutdown")
	fs.Bool(FlagEngineSkipTableCreation, d.Engine.SkipTableCreation, "assume the table exists")

	fs.Int(FlagApiPort, d.Api.Port, "HTTP ingest port")
	fs.String(FlagApiBasePath, d.Api.BasePath, "base path of the HTTP routes")
	fs.Int64(FlagApiMaxBodySize, d.Api.MaxBodySize, "maximum decompressed request body size in bytes")
	fs.Bool(FlagApiMetricsEnabled, d.Api.Metrics.Enabled, "serve Prometheus metrics")
	fs.Int(FlagApiMetricsPort, d.Api.Metrics.Port, "Prometheus metrics port")

	return nil
}

// InitConfigWithFlagSet builds the configuration from the defaults, the
// file given by --config, the environment and the flags set on fs, in that
// order, and validates it.
func InitConfigWithFlagSet(fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	if path, err := fs.GetString(FlagConfig); err == nil && path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.applyFlags(fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	for _, apply := range []func() error{
		override(fs, FlagLogLevel, fs.GetString, &c.Log.Level),
		override(fs, FlagLogToTable, fs.GetBool, &c.Log.ToTable),

		override(fs, FlagDatabaseType, fs.GetString, &c.Database.Type),
		override(fs, FlagDatabaseURL, fs.GetString, &c.Database.URL),
		override(fs, FlagDatabaseMaxConns, fs.GetInt, &c.Database.MaxConns),
		override(fs, FlagDatabaseMaxIdleTime, fs.GetInt, &c.Database.MaxIdleTime),
		override(fs, FlagDatabaseMaxRowsPerStatement, fs.GetInt, &c.Database.MaxRowsPerStatement),

		override(fs, FlagEngineMode, fs.GetString, &c.Engine.Mode),
		override(fs, FlagEngineTable, fs.GetString, &c.Engine.Table),
		override(fs, FlagEngineStore, fs.GetStringSlice, &c.Engine.Store),
		override(fs, FlagEngineDisableTriggers, fs.GetBool, &c.Engine.DisableTriggers),
		override(fs, FlagEngineTimeStampUTC, fs.GetBool, &c.Engine.TimeStampUTC),
		override(fs, FlagEngineExcludeAdditionalProperties, fs.GetBool, &c.Engine.ExcludeAdditionalProperties),
		override(fs, FlagEngineBatchPostingLimit, fs.GetInt, &c.Engine.BatchPostingLimit),
		override(fs, FlagEnginePeriod, fs.GetDuration, &c.Engine.Period),
		override(fs, FlagEngineQueueCapacity, fs.GetInt, &c.Engine.QueueCapacity),
		override(fs, FlagEngineOverflowPolicy, fs.GetString, &c.Engine.OverflowPolicy),
		override(fs, FlagEngineBlockTimeout, fs.GetDuration, &c.Engine.BlockTimeout),
		override(fs, FlagEngineRetryCount, fs.GetInt, &c.Engine.RetryCount),
		override(fs, FlagEngineRetryBackoff, fs.GetDuration, &c.Engine.RetryBackoff),
		override(fs, FlagEngineWriteTimeout, fs.GetDuration, &c.Engine.WriteTimeout),
		override(fs, FlagEngineCloseTimeout, fs.GetDuration, &c.Engine.CloseTimeout),
		override(fs, FlagEngineSkipTableCreation, fs.GetBool, &c.Engine.SkipTableCreation),

		override(fs, FlagApiPort, fs.GetInt, &c.Api.Port),
		override(fs, FlagApiBasePath, fs.GetString, &c.Api.BasePath),
		override(fs, FlagApiMaxBodySize, fs.GetInt64, &c.Api.MaxBodySize),
		override(fs, FlagApiMetricsEnabled, fs.GetBool, &c.Api.Metrics.Enabled),
		override(fs, FlagApiMetricsPort, fs.GetInt, &c.Api.Metrics.Port),
	} {
		if err := apply(); err != nil {
			return err
		}
	}
	return nil
}

// override returns a func copying the value of an explicitly set flag into dst.
// Flags left to their default, or not registered on fs, do not override.
func override[T any](fs *pflag.FlagSet, name string, get func(string) (T, error), dst *T) func() error {
	return func() error {
		if !fs.Changed(name) {
			return nil
		}
		v, err := get(name)
		if err != nil {
			return errors.Wrapf(err, "flag --%s", name)
		}
		*dst = v
		return nil
	}
}

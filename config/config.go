// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package config

import (
	"os"
	"strings"
	"time"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/ingest"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ModeSink delivers events asynchronously in batches.
	ModeSink = "sink"
	// ModeAudit writes every event synchronously.
	ModeAudit = "audit"

	// DatabaseTypePostgres writes with pgx and COPY.
	DatabaseTypePostgres = "postgres"
	// DatabaseTypePQ writes with database/sql, lib/pq and multi-row INSERT.
	DatabaseTypePQ = "pq"
	// DatabaseTypeMemory keeps rows in memory, for development.
	DatabaseTypeMemory = "memory"

	// EnvDatabaseURL overrides database.url, so that credentials can stay
	// out of the configuration file.
	EnvDatabaseURL = "SQLSINK_DATABASE_URL"
)

// Config is the configuration of the sqlsink process.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Api      ApiConfig      `yaml:"api"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// ToTable tees the process logs into the sink engine.
	ToTable bool `yaml:"to_table"`
}

// DatabaseConfig configures the destination database.
type DatabaseConfig struct {
	Type        string `yaml:"type"`
	URL         string `yaml:"url"`
	MaxConns    int    `yaml:"max_conns"`
	MaxIdleTime int    `yaml:"max_idle_time"` // seconds
	// MaxRowsPerStatement only applies to the pq writer.
	MaxRowsPerStatement int `yaml:"max_rows_per_statement"`
}

// EngineConfig configures the delivery engine and the log table.
type EngineConfig struct {
	Mode  string `yaml:"mode"`
	Table string `yaml:"table"`

	Store                       []string         `yaml:"store"`
	AdditionalColumns           []columns.Column `yaml:"additional_columns"`
	DisableTriggers             bool             `yaml:"disable_triggers"`
	TimeStampUTC                bool             `yaml:"timestamp_utc"`
	ExcludeAdditionalProperties bool             `yaml:"exclude_additional_properties"`

	BatchPostingLimit int           `yaml:"batch_posting_limit"`
	Period            time.Duration `yaml:"period"`
	QueueCapacity     int           `yaml:"queue_capacity"`
	OverflowPolicy    string        `yaml:"overflow_policy"`
	BlockTimeout      time.Duration `yaml:"block_timeout"`
	RetryCount        int           `yaml:"retry_count"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	CloseTimeout      time.Duration `yaml:"close_timeout"`
	SkipTableCreation bool          `yaml:"skip_table_creation"`
}

// ApiConfig configures the HTTP ingest server.
type ApiConfig struct {
	Port        int           `yaml:"port"`
	BasePath    string        `yaml:"base_path"`
	MaxBodySize int64         `yaml:"max_body_size"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the configuration used for every omitted field.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Type:     DatabaseTypePostgres,
			MaxConns: 4,
		},
		Engine: EngineConfig{
			Mode:              ModeSink,
			Table:             "logs",
			BatchPostingLimit: types.DefaultBatchPostingLimit,
			Period:            types.DefaultPeriod,
			QueueCapacity:     types.DefaultQueueCapacity,
			OverflowPolicy:    string(types.OverflowDropOldest),
			BlockTimeout:      types.DefaultBlockTimeout,
			RetryCount:        3,
			RetryBackoff:      types.DefaultRetryBackoff,
			WriteTimeout:      types.DefaultWriteTimeout,
			CloseTimeout:      types.DefaultCloseTimeout,
		},
		Api: ApiConfig{
			Port:        8080,
			MaxBodySize: ingest.DefaultMaxBodySize,
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    8081,
			},
		},
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file into c. Fields absent from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// applyEnv overrides the fields that can be set from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Database.URL = v
	}
}

// Validate checks the process level settings, then the engine options the
// same way engine construction does.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf("unknown log level %q", c.Log.Level)
	}

	switch strings.ToLower(c.Database.Type) {
	case DatabaseTypePostgres, DatabaseTypePQ:
		if c.Database.URL == "" {
			return errors.Newf("database.url is required for database type %q", c.Database.Type)
		}
	case DatabaseTypeMemory:
	default:
		return errors.Newf("unsupported database type: %s", c.Database.Type)
	}

	switch c.Engine.Mode {
	case ModeSink:
	case ModeAudit:
		if c.Engine.DisableTriggers {
			return types.ConfigurationError(types.ErrAuditDisableTriggers)
		}
		if c.Log.ToTable {
			return errors.New("log.to_table requires the sink engine mode")
		}
	default:
		return errors.Newf("unknown engine mode %q", c.Engine.Mode)
	}

	if c.Api.Port <= 0 || c.Api.Port > 65535 {
		return errors.Newf("invalid api port %d", c.Api.Port)
	}
	if c.Api.Metrics.Enabled {
		if c.Api.Metrics.Port <= 0 || c.Api.Metrics.Port > 65535 {
			return errors.Newf("invalid metrics port %d", c.Api.Metrics.Port)
		}
		if c.Api.Metrics.Port == c.Api.Port {
			return errors.Newf("api and metrics ports must differ, both are %d", c.Api.Port)
		}
	}

	opts, err := c.EngineOptions()
	if err != nil {
		return err
	}
	return opts.WithDefaults().Validate()
}

// EngineOptions converts the engine section into engine options.
func (c *Config) EngineOptions() (types.Options, error) {
	policy, err := types.ParseOverflowPolicy(c.Engine.OverflowPolicy)
	if err != nil {
		return types.Options{}, types.ConfigurationError(err)
	}

	var store []columns.StandardColumn
	for _, name := range c.Engine.Store {
		store = append(store, columns.StandardColumn(name))
	}

	return types.Options{
		Table: c.Engine.Table,
		Columns: columns.ColumnOptions{
			Store:                       store,
			AdditionalColumns:           c.Engine.AdditionalColumns,
			DisableTriggers:             c.Engine.DisableTriggers,
			TimeStampUTC:                c.Engine.TimeStampUTC,
			ExcludeAdditionalProperties: c.Engine.ExcludeAdditionalProperties,
		},
		BatchPostingLimit: c.Engine.BatchPostingLimit,
		Period:            c.Engine.Period,
		QueueCapacity:     c.Engine.QueueCapacity,
		OverflowPolicy:    policy,
		BlockTimeout:      c.Engine.BlockTimeout,
		RetryCount:        c.Engine.RetryCount,
		RetryBackoff:      c.Engine.RetryBackoff,
		WriteTimeout:      c.Engine.WriteTimeout,
		CloseTimeout:      c.Engine.CloseTimeout,
		SkipTableCreation: c.Engine.SkipTableCreation,
		CollectMetrics:    c.Api.Metrics.Enabled,
	}, nil
}

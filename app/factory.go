// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Xorcist77/sqlsink/config"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter/memory"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter/postgres"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter/sqldb"
	"github.com/Xorcist77/sqlsink/services/audit"
	"github.com/Xorcist77/sqlsink/services/sink"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/database"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
)

// Services holds the application services.
type Services struct {
	Engine types.IEngine
	// Logger is the process logger, teed into the engine when the
	// configuration asks for it.
	Logger *logger.Logger
}

// NewServicesFromConfig creates the table writer and the engine from
// configuration.
func NewServicesFromConfig(cfg *config.Config, l *logger.Logger) (*Services, error) {
	appCtx := context.Background()

	writer, err := NewWriterFromConfig(appCtx, cfg, l)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngineFromConfig(cfg, l, writer)
	if err != nil {
		l.Error("failed to create engine",
			slog.Any("error", err),
			slog.String("mode", cfg.Engine.Mode))
		return nil, errors.Wrap(err, "error creating engine")
	}

	services := &Services{Engine: engine, Logger: l}
	if cfg.Log.ToTable {
		// The engine itself logs through l, never through the tee.
		services.Logger = l.WithSink(engine)
	}
	return services, nil
}

// NewWriterFromConfig creates the table writer for the configured database.
func NewWriterFromConfig(
	ctx context.Context, cfg *config.Config, l *logger.Logger,
) (tablewriter.ITableWriter, error) {
	conn := database.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}

	switch strings.ToLower(cfg.Database.Type) {
	case config.DatabaseTypePostgres:
		pool, err := database.NewPool(ctx, conn)
		if err != nil {
			l.Error("failed to connect to database",
				slog.Any("error", err),
				slog.String("database_type", cfg.Database.Type),
				slog.Int("max_conns", cfg.Database.MaxConns))
			return nil, errors.Wrap(err, "error connecting to database")
		}
		return postgres.NewTableWriter(pool), nil

	case config.DatabaseTypePQ:
		db, err := database.NewConnection(ctx, conn)
		if err != nil {
			l.Error("failed to connect to database",
				slog.Any("error", err),
				slog.String("database_type", cfg.Database.Type),
				slog.Int("max_conns", cfg.Database.MaxConns))
			return nil, errors.Wrap(err, "error connecting to database")
		}
		return sqldb.NewTableWriter(db, sqldb.Options{
			MaxRowsPerStatement: cfg.Database.MaxRowsPerStatement,
		}), nil

	case config.DatabaseTypeMemory:
		return memory.NewTableWriter(), nil
	}
	return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
}

// NewEngineFromConfig creates the engine of the configured mode on top of
// writer. The engine owns writer; writer is closed if the engine cannot be
// created.
func NewEngineFromConfig(
	cfg *config.Config, l *logger.Logger, writer tablewriter.ITableWriter,
) (engine types.IEngine, err error) {
	defer func() {
		if err != nil {
			_ = writer.Close()
		}
	}()

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	switch cfg.Engine.Mode {
	case config.ModeSink:
		e, err := sink.NewSinkEngine(l, writer, opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ModeAudit:
		e, err := audit.NewAuditEngine(l, writer, opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, types.ConfigurationError(errors.Newf("unknown engine mode %q", cfg.Engine.Mode))
}

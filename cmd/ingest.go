// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Xorcist77/sqlsink/app"
	"github.com/Xorcist77/sqlsink/config"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/ingest"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|-]",
	Short: "Write NDJSON events from a file or stdin",
	Long: `Read newline-delimited JSON events from a file, or from stdin when the
file is "-" or omitted, and emit them to the configured engine. The engine is
closed at the end of the input, which writes every pending event.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	err := config.AddFlagsToFlagSet(ingestCmd.Flags())
	if err != nil {
		panic(fmt.Sprintf("Error adding flags to ingest command: %v", err))
	}
	ingestCmd.Flags().Int("max-line-size", ingest.DefaultMaxLineSize, "maximum size of an input line in bytes")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.InitConfigWithFlagSet(cmd.Flags())
	if err != nil {
		return errors.Wrap(err, "error initializing config")
	}
	maxLineSize, _ := cmd.Flags().GetInt("max-line-size")

	var input io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "error opening input")
		}
		defer f.Close()
		input = f
	}

	l := logger.NewLogger(cfg.Log.Level)
	services, err := app.NewServicesFromConfig(cfg, l)
	if err != nil {
		return errors.Wrap(err, "error creating services")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := ingestStream(ctx, input, services.Engine, maxLineSize)
	if closeErr := services.Engine.Close(); closeErr != nil {
		err = errors.CombineErrors(err, errors.Wrap(closeErr, "error closing engine"))
	}
	l.Info("ingest done", slog.Int("events", n), slog.String("mode", cfg.Engine.Mode))
	return err
}

// ingestStream emits every NDJSON event of r to engine, in order. It does
// not close the engine.
func ingestStream(ctx context.Context, r io.Reader, engine types.IEngine, maxLineSize int) (int, error) {
	d := ingest.NewDecoder(0, maxLineSize)
	n, err := d.Stream(ctx, r, func(event events.LogEvent) error {
		return engine.Emit(ctx, event)
	})
	if err != nil {
		return n, errors.Wrapf(err, "ingest stopped after %d event(s)", n)
	}
	return n, nil
}

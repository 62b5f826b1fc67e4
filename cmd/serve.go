// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cmd

import (
	"context"
	"fmt"

	"github.com/Xorcist77/sqlsink/app"
	"github.com/Xorcist77/sqlsink/config"
	eventscontroller "github.com/Xorcist77/sqlsink/controllers/events"
	healthcontroller "github.com/Xorcist77/sqlsink/controllers/health"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingest server",
	Long: `Start the sqlsink HTTP server. Events posted to /v1/events are handed to
the configured engine; metrics are served on a separate port.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Add all configuration flags to the serve command so they show up in help
	err := config.AddFlagsToFlagSet(serveCmd.Flags())
	if err != nil {
		panic(fmt.Sprintf("Error adding flags to serve command: %v", err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.InitConfigWithFlagSet(cmd.Flags())
	if err != nil {
		return errors.Wrap(err, "error initializing config")
	}

	l := logger.NewLogger(cfg.Log.Level)

	// Create the writer and the engine using the factory
	services, err := app.NewServicesFromConfig(cfg, l)
	if err != nil {
		return errors.Wrap(err, "error creating services")
	}

	application, err := app.NewApp(
		app.WithLogger(services.Logger),
		app.WithApiPort(cfg.Api.Port),
		app.WithApiBaseURL(cfg.Api.BasePath),
		app.WithApiMetrics(cfg.Api.Metrics.Enabled),
		app.WithApiMetricsPort(cfg.Api.Metrics.Port),
		app.WithServices(services),
		app.WithApiController(healthcontroller.NewController()),
		app.WithApiController(eventscontroller.NewController(services.Engine, cfg.Api.MaxBodySize)),
	)
	if err != nil {
		_ = services.Engine.Close()
		return errors.Wrap(err, "error creating application")
	}

	// Start the application.
	// This serves the API until a signal is received, then flushes and
	// closes the engine.
	err = application.Start(context.Background())
	if err != nil {
		return errors.Wrap(err, "error starting application")
	}

	return nil
}

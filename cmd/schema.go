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

	"github.com/Xorcist77/sqlsink/app"
	"github.com/Xorcist77/sqlsink/config"
	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the DDL of the log table",
	Long: `Print the CREATE TABLE statement of the configured log table. With
--apply, also create the table in the database, or check the columns of an
existing one.`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	err := config.AddFlagsToFlagSet(schemaCmd.Flags())
	if err != nil {
		panic(fmt.Sprintf("Error adding flags to schema command: %v", err))
	}
	schemaCmd.Flags().Bool("apply", false, "create or check the table in the database")
}

func runSchema(cmd *cobra.Command, args []string) error {
	apply, _ := cmd.Flags().GetBool("apply")
	if !apply && !cmd.Flags().Changed(config.FlagDatabaseType) {
		// Printing needs no connection.
		if err := cmd.Flags().Set(config.FlagDatabaseType, config.DatabaseTypeMemory); err != nil {
			return err
		}
	}

	cfg, err := config.InitConfigWithFlagSet(cmd.Flags())
	if err != nil {
		return errors.Wrap(err, "error initializing config")
	}

	schema, err := writeSchema(cmd.OutOrStdout(), cfg)
	if err != nil {
		return err
	}
	if !apply {
		return nil
	}

	l := logger.NewLogger(cfg.Log.Level)
	ctx := context.Background()
	writer, err := app.NewWriterFromConfig(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer writer.Close()

	result, err := writer.EnsureSchema(ctx, l, schema)
	if err != nil {
		return errors.Wrap(err, "error applying schema")
	}
	l.Info("schema applied", slog.String("table", schema.Table), slog.String("result", result.String()))
	return nil
}

// writeSchema resolves the configured schema and writes its DDL to w.
func writeSchema(w io.Writer, cfg *config.Config) (columns.Schema, error) {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return columns.Schema{}, err
	}
	schema, err := columns.BuildSchema(opts.Table, opts.Columns)
	if err != nil {
		return columns.Schema{}, errors.Wrap(err, "error building schema")
	}
	if _, err := fmt.Fprintf(w, "%s;\n", tablewriter.CreateTableStatement(schema)); err != nil {
		return columns.Schema{}, err
	}
	return schema, nil
}

// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sqlsink",
	Short: "Deliver structured log events to a SQL table",
	Long: `sqlsink writes structured log events to a PostgreSQL-compatible table,
either asynchronously in batches (sink mode) or synchronously, one committed
write per call (audit mode).`,
	SilenceUsage: true,
}

// Execute runs the root command and exits with a non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

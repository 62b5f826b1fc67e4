// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import "github.com/Xorcist77/sqlsink/cmd"

func main() {
	cmd.Execute()
}

// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Command authwatch profiles authentication behavior per account and flags
// anomalous login events.
//
// Batch mode processes one CSV export per invocation:
//
//	authwatch run --input /data/AUTH_DATA/March_2024/March_05_2024.csv
//	authwatch run --rsa March_05_2024 --retrain
//
// Watch mode supervises an inbox directory, the read-only API and, with the
// channel backend, an alert log:
//
//	AUTHWATCH_INBOX_DIR=/srv/inbox authwatch watch
//
// Configuration is layered with Koanf v2: built-in defaults, then
// authwatch.yaml (or the file named by --config / AUTHWATCH_CONFIG), then
// environment variables. Any fatal error exits with status 1.
package main

import (
	"fmt"
	"os"

	"github.com/tomtom215/authwatch/internal/logging"
)

func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	err := root.Execute()
	if cerr := logging.Close(); cerr != nil {
		fmt.Fprintln(os.Stderr, "authwatch: close log file:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "authwatch:", err)
		os.Exit(1)
	}
}

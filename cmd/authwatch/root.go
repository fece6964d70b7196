// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tomtom215/authwatch/internal/config"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/store"
)

// app carries state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	out    io.Writer
	errOut io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           "authwatch",
		Short:         "Authentication behavior profiling and anomaly detection",
		Long:          "authwatch keeps per-account login histories, fits a sequence model per account and flags anomalous authentication events with rules, DBSCAN and an isolation forest.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file (default: search authwatch.yaml, AUTHWATCH_CONFIG)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return a.init()
	}

	cmd.AddCommand(
		newRunCmd(a),
		newResolveCmd(a),
		newProfilesCmd(a),
		newWatchCmd(a),
	)

	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

// init loads configuration and configures the global logger.
func (a *app) init() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    a.errOut,
		File: logging.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		},
	})
	return nil
}

// openStore opens the history store described by the loaded config.
func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(store.Config{
		Path:        a.cfg.History.Path,
		SyncWrites:  a.cfg.History.SyncWrites,
		Compression: a.cfg.History.Compression,
		MinEvents:   a.cfg.History.MinEvents,
	})
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing history store")
	}
}

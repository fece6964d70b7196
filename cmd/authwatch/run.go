// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/authwatch/internal/alerts"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/paths"
	"github.com/tomtom215/authwatch/internal/pipeline"
)

type runOptions struct {
	input   string
	rsa     string
	auth    string
	retrain bool
	asJSON  bool
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one authentication log export",
		Long: `Process one CSV export: merge it into the stored history, refit the
models of affected accounts, score every event and write the processed,
anomalies and summary reports.

The input is either a direct path (--input) or a Month_Day_Year name
resolved under report.raw_data_root (--rsa or --auth).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), o)
		},
	}

	cmd.Flags().StringVarP(&o.input, "input", "i", "", "path of the CSV export")
	cmd.Flags().StringVar(&o.rsa, "rsa", "", "Month_Day_Year name under RSA_DATA")
	cmd.Flags().StringVar(&o.auth, "auth", "", "Month_Day_Year name under AUTH_DATA")
	cmd.Flags().BoolVar(&o.retrain, "retrain", false, "refit detector models instead of reusing stored ones")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print the run result as JSON")
	cmd.MarkFlagsMutuallyExclusive("input", "rsa", "auth")
	cmd.MarkFlagsOneRequired("input", "rsa", "auth")
	return cmd
}

// inputPath returns the file to process for the given flags.
func (o runOptions) inputPath(root string) (string, error) {
	switch {
	case o.rsa != "":
		return paths.Resolve(root, paths.KindRSA, o.rsa)
	case o.auth != "":
		return paths.Resolve(root, paths.KindAuth, o.auth)
	default:
		return o.input, nil
	}
}

func (a *app) run(ctx context.Context, o runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	input, err := o.inputPath(a.cfg.Report.RawDataRoot)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	var opts []pipeline.Option
	if a.cfg.Alerts.Enabled {
		if a.cfg.Alerts.Backend == alerts.BackendChannel {
			logging.Info().Msg("Channel alert backend has no subscriber in batch mode, alerts skipped")
		} else {
			pub, err := alerts.New(a.cfg.Alerts)
			if err != nil {
				return err
			}
			defer func() {
				if err := pub.Close(); err != nil {
					logging.Warn().Err(err).Msg("Error closing alert publisher")
				}
			}()
			opts = append(opts, pipeline.WithAlerts(pub))
		}
	}

	res, err := pipeline.New(a.cfg, st, opts...).RunFile(ctx, input, pipeline.RunOptions{Retrain: o.retrain})
	if err != nil {
		return err
	}

	if o.asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = fmt.Fprintln(a.out, string(data))
		return err
	}

	fmt.Fprintf(a.out, "run %s: %d events, %d users, %d anomalies (trained %d, deferred %d)\n",
		res.RunID, res.Events, res.Users, res.Anomalies, res.Trained, res.Deferred)
	for _, path := range res.Reports.List() {
		fmt.Fprintf(a.out, "  %s\n", path)
	}
	for det, msg := range res.DetectorErrors {
		fmt.Fprintf(a.out, "  detector %s failed: %s\n", det, msg)
	}
	return nil
}

// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/authwatch/internal/alerts"
	"github.com/tomtom215/authwatch/internal/api"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/pipeline"
	"github.com/tomtom215/authwatch/internal/supervisor"
	"github.com/tomtom215/authwatch/internal/supervisor/services"
)

func newWatchCmd(a *app) *cobra.Command {
	var inbox string
	var noAPI bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Supervise an inbox directory and serve the read-only API",
		Long: `Poll watch.inbox_dir and process each CSV file in name order. Processed
files move to watch.processed_dir and failed ones to watch.failed_dir.
Repeated environment failures open a circuit breaker that pauses
processing for watch.breaker_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inbox != "" {
				a.cfg.Watch.InboxDir = inbox
			}
			if !a.cfg.WatchEnabled() {
				return errors.New("watch mode needs watch.inbox_dir (or --inbox)")
			}
			return a.watch(cmd.Context(), !noAPI)
		},
	}

	cmd.Flags().StringVar(&inbox, "inbox", "", "inbox directory (default: watch.inbox_dir)")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "do not start the HTTP API")
	return cmd
}

func (a *app) watch(ctx context.Context, withAPI bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	var opts []pipeline.Option
	if a.cfg.Alerts.Enabled {
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
		if pub.Backend() == alerts.BackendChannel {
			tree.AddIngestService(services.NewAlertLogService(pub))
		}
	}

	pipe := pipeline.New(a.cfg, st, opts...)
	tree.AddDataService(services.NewStoreGCService(st, 0))
	tree.AddIngestService(services.NewInboxService(pipe, a.cfg.Watch))

	if withAPI {
		server := api.NewServer(a.cfg, api.NewHandler(st))
		tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	}

	logging.Info().Str("inbox", a.cfg.Watch.InboxDir).Msg("Starting supervisor tree")
	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Watch mode stopped")
	return nil
}

// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

/*
Package supervisor provides process supervision for watch mode using suture v4.

The tree separates services into layers so that a failing ingest loop never
stops the read-only API:

	RootSupervisor ("authwatch")
	├── DataSupervisor ("data-layer")
	│   └── StoreGCService
	├── IngestSupervisor ("ingest-layer")
	│   ├── InboxService
	│   └── AlertLogService (channel backend only)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Supervisor events (starts, failures, backoff) are logged through sutureslog
using the zerolog-backed slog.Logger from the logging package:

	tree, err := supervisor.NewSupervisorTree(
	    logging.NewSlogLogger(),
	    supervisor.DefaultTreeConfig(),
	)
	tree.AddIngestService(services.NewInboxService(pipe, cfg.Watch))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

The services themselves live in the services subpackage.
*/
package supervisor

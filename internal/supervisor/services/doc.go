// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package services adapts watch-mode components to suture.Service.
//
// Each service blocks in Serve until its context is canceled and returns
// ctx.Err() on a clean stop. The pipeline, store and alert dependencies are
// accepted as small interfaces (Runner, GarbageCollector, AlertListener) so
// those services can be tested without a store or a broker.
//
//	InboxService       polls the inbox, runs the pipeline, moves files
//	StoreGCService     runs badger value log GC on an interval
//	AlertLogService    logs alerts from the in-process watermill topic
//	HTTPServerService  binds and serves the read-only API
package services

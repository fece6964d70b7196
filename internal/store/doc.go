// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package store persists user history, detector models and run metadata in
// BadgerDB.
//
// # Key Layout
//
//	head:<user_id>:<seq>     set, event count and model (JSON)
//	events:<user_id>:<seq>   events appended by save <seq> (JSON array)
//	meta:profile_seq         last committed save sequence
//	model:<name>             StoredModel (JSON, SHA-256 verified on read)
//	meta:last_run            RunRecord (JSON)
//
// Model names are "<detector>:<feature-set>", see ModelName.
//
// # Atomicity
//
// Save writes only the profiles changed by the run: a new head and a chunk
// of new events each, tagged with the next sequence. Writes go through a
// WriteBatch, so their size is not bounded by BadgerDB's transaction limit.
// The sequence marker is written last; readers ignore versions above it,
// so a failed save leaves the previous state visible and the caller aborts
// the run. The next save deletes the leftovers first.
//
// # Usage
//
//	st, err := store.Open(store.Config{Path: "data/history", SyncWrites: true})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	state, err := st.Load(ctx)
//	// ... merge, train
//	if err := st.Save(ctx, state); err != nil {
//	    return err
//	}
package store

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Command devpulse runs the DevPulse daemon and its companion status
// view.
//
//	devpulse serve    run the ingest socket, engine, and reconciler
//	devpulse status   render sessions, projects, and conflicts from the store
//
// Configuration is read from the file named by --config or the
// DEVPULSE_CONFIG environment variable; without either, the documented
// defaults apply.
package main

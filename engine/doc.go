// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the event enrichment and session-lifecycle core of
// DevPulse. It consumes raw agent events, maintains derived
// session/project state machines, ages sessions against idle/stop
// thresholds on a reconciliation cadence, generates end-of-session
// devlogs, detects cross-session file conflicts, and computes
// per-session performance metrics on demand.
//
// All mutations (event-driven and timer-driven) are serialized
// through a single mutex inside Engine, so an event arrival and a
// reconciliation tick can never race on the same session. Mutation
// methods return the resulting deltas; the engine publishes them to
// the Broadcaster after releasing the lock, and publishing never
// blocks on slow subscribers (each subscriber has a bounded
// drop-oldest ring).
//
// Nothing in this package is fatal to the process: a malformed event
// is rejected with ErrValidation and never crashes ingestion of
// subsequent events, and a store write failure is logged and skipped.
package engine

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists DevPulse state to SQLite. Sessions, projects,
// and conflicts are upserted by their natural key; devlogs and events
// are append-only. Structured fields (compaction history, access
// lists, tool breakdowns, dev servers) are stored as deterministic
// CBOR blobs, and large payloads and chat transcripts are
// zstd-compressed with an encoding tag column.
//
// The engine treats every write as best-effort: in-memory state stays
// authoritative and a failed write is logged, not surfaced to the
// event sender. The query side serves the status subcommand and any
// external reader.
package store

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the typed records that flow through DevPulse:
// raw agent events on the ingest boundary, derived session and project
// state, durable devlog summaries, file conflicts, on-demand session
// metrics, and the deltas published on the broadcast boundary.
//
// Records carry JSON tags for the external transport and round-trip
// through lib/codec (CBOR) for broadcast and storage blobs. RawEvent is
// append-only and never mutated after ingest; everything else is
// derived state owned by the engine.
package schema

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// DeltaKind tags the record type carried by a broadcast delta.
type DeltaKind string

const (
	DeltaSession  DeltaKind = "session"
	DeltaProject  DeltaKind = "project"
	DeltaConflict DeltaKind = "conflict"
	DeltaDevLog   DeltaKind = "devlog"
)

// Delta is one state change published on the broadcast boundary.
// Mutation functions return deltas explicitly rather than emitting
// through a side channel, so the transport layer can be swapped
// freely. Data is a snapshot copy of the record, safe to encode after
// the mutation path has moved on.
type Delta struct {
	Kind DeltaKind `json:"kind" cbor:"kind"`
	Data any       `json:"data" cbor:"data"`
}

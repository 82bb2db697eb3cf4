// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes DevPulse's CBOR configuration. Broadcast
// deltas on the subscriber boundary and structured blob columns in the
// store (compaction history, conflict access lists, tool breakdowns)
// are encoded with Core Deterministic Encoding so the same logical
// value always produces identical bytes.
package codec

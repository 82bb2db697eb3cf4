// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// ToolStats is the success/failure tally for one tool. Rates are
// expressed 0-100.
type ToolStats struct {
	Successes   int     `json:"successes" cbor:"successes"`
	Failures    int     `json:"failures" cbor:"failures"`
	SuccessRate float64 `json:"success_rate" cbor:"success_rate"`
}

// TurnStats summarizes the distribution of turn durations (elapsed
// time between a user prompt and the end of the agent's response).
type TurnStats struct {
	Count  int           `json:"count" cbor:"count"`
	Mean   time.Duration `json:"mean" cbor:"mean"`
	Median time.Duration `json:"median" cbor:"median"`
	Min    time.Duration `json:"min" cbor:"min"`
	Max    time.Duration `json:"max" cbor:"max"`
}

// ActivityBucket is one 1-minute bin of the activity timeline,
// counting events whose timestamps fall within [Start, Start+1m).
type ActivityBucket struct {
	Start      time.Time `json:"start" cbor:"start"`
	EventCount int       `json:"event_count" cbor:"event_count"`
}

// SessionMetrics is derived on demand from a session's recorded
// history, never cached incrementally, so recomputation from the same
// history is always identical.
type SessionMetrics struct {
	SessionID string `json:"session_id" cbor:"session_id"`

	ToolStats          map[string]ToolStats `json:"tool_stats,omitempty" cbor:"tool_stats,omitempty"`
	OverallSuccessRate float64              `json:"overall_success_rate" cbor:"overall_success_rate"`

	Turns TurnStats `json:"turns" cbor:"turns"`

	EventsPerMinute float64          `json:"events_per_minute" cbor:"events_per_minute"`
	Timeline        []ActivityBucket `json:"timeline,omitempty" cbor:"timeline,omitempty"`
}

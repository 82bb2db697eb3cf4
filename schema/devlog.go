// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// DevLog is the durable end-of-session summary. Created exactly once,
// at the transition into stopped, and immutable thereafter.
type DevLog struct {
	SessionID   string `json:"session_id" cbor:"session_id"`
	ProjectName string `json:"project_name" cbor:"project_name"`
	Branch      string `json:"branch,omitempty" cbor:"branch,omitempty"`
	Summary     string `json:"summary" cbor:"summary"`

	// FilesChanged is deduplicated, in first-seen order. Commits are
	// subject lines in chronological order.
	FilesChanged []string `json:"files_changed,omitempty" cbor:"files_changed,omitempty"`
	Commits      []string `json:"commits,omitempty" cbor:"commits,omitempty"`

	StartedAt time.Time `json:"started_at" cbor:"started_at"`
	EndedAt   time.Time `json:"ended_at" cbor:"ended_at"`

	// DurationMinutes is (ended - started) in minutes, clamped at
	// zero. Clock skew producing a negative value is clamped and
	// logged, never surfaced as an error.
	DurationMinutes float64 `json:"duration_minutes" cbor:"duration_minutes"`

	EventCount    int            `json:"event_count" cbor:"event_count"`
	ToolBreakdown map[string]int `json:"tool_breakdown,omitempty" cbor:"tool_breakdown,omitempty"`
}

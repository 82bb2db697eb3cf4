// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// SessionStatus is the lifecycle state of a session. Transitions are
// monotonic (active → idle → stopped, active → waiting) with exactly
// one non-monotonic edge: fresh activity reactivates an idle or
// waiting session back to active. Stopped is terminal.
type SessionStatus string

const (
	// StatusActive means the session produced an event recently.
	StatusActive SessionStatus = "active"

	// StatusIdle means the session has gone quiet past the idle
	// threshold but not yet past the stop threshold.
	StatusIdle SessionStatus = "idle"

	// StatusWaiting means the agent is blocked on human input.
	StatusWaiting SessionStatus = "waiting"

	// StatusStopped is terminal. Reached by a Stop/SessionEnd event or
	// by aging past the stop threshold.
	StatusStopped SessionStatus = "stopped"
)

// Live reports whether the status counts toward a project's
// active_sessions materialized view.
func (s SessionStatus) Live() bool {
	return s == StatusActive || s == StatusIdle || s == StatusWaiting
}

// CompactionHistoryCap bounds the per-session compaction timestamp
// history. Oldest entries are dropped first.
const CompactionHistoryCap = 20

// Session is the derived per-session state. Created on the first event
// carrying an unseen session ID, mutated by every subsequent event and
// by the reconciliation timer, never deleted: it is retained for
// history, metrics, and devlog generation once stopped.
type Session struct {
	SessionID   string        `json:"session_id" cbor:"session_id"`
	ProjectName string        `json:"project_name" cbor:"project_name"`
	SourceApp   string        `json:"source_app" cbor:"source_app"`
	Status      SessionStatus `json:"status" cbor:"status"`

	StartedAt   time.Time `json:"started_at" cbor:"started_at"`
	LastEventAt time.Time `json:"last_event_at" cbor:"last_event_at"`
	EventCount  int       `json:"event_count" cbor:"event_count"`

	ModelName  string `json:"model_name,omitempty" cbor:"model_name,omitempty"`
	WorkingDir string `json:"working_dir,omitempty" cbor:"working_dir,omitempty"`

	// Branch is the most recently observed git branch for this
	// session; TaskContext is the human-readable task derived from it.
	Branch      string `json:"branch,omitempty" cbor:"branch,omitempty"`
	TaskContext string `json:"task_context,omitempty" cbor:"task_context,omitempty"`

	CompactionCount   int         `json:"compaction_count" cbor:"compaction_count"`
	LastCompactionAt  time.Time   `json:"last_compaction_at,omitzero" cbor:"last_compaction_at,omitempty"`
	CompactionHistory []time.Time `json:"compaction_history,omitempty" cbor:"compaction_history,omitempty"`
}

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// Hook event types emitted by coding-agent hook systems. These are the
// "hook_event_type" field of a RawEvent. Unknown values are accepted
// and treated as generic session activity.
const (
	// EventSessionStart is emitted when an agent session begins.
	EventSessionStart = "SessionStart"

	// EventUserPromptSubmit is emitted when the human submits a prompt.
	// Marks a turn boundary for metrics.
	EventUserPromptSubmit = "UserPromptSubmit"

	// EventPreToolUse is emitted before the agent invokes a tool.
	EventPreToolUse = "PreToolUse"

	// EventPostToolUse is emitted after a tool invocation completes,
	// with the outcome in the payload.
	EventPostToolUse = "PostToolUse"

	// EventNotification is emitted when the agent is blocked on human
	// input (permission prompt, question). Moves the session to the
	// waiting status.
	EventNotification = "Notification"

	// EventPreCompact is emitted before the agent compacts its context
	// window. Bookkeeping only; never changes session status.
	EventPreCompact = "PreCompact"

	// EventSubagentStop is emitted when a delegated subagent finishes.
	// Ordinary activity for the parent session, not a termination.
	EventSubagentStop = "SubagentStop"

	// EventStop is emitted when the agent finishes its run. Terminates
	// the session immediately, bypassing the timer thresholds.
	EventStop = "Stop"

	// EventSessionEnd is emitted when the session is torn down.
	// Terminates the session like EventStop.
	EventSessionEnd = "SessionEnd"
)

// ChatMessage is one entry of an optional session transcript attached
// to a RawEvent. The content is opaque to the engine; the store may
// compress it.
type ChatMessage struct {
	Role    string `json:"role" cbor:"role"`
	Content string `json:"content" cbor:"content"`
}

// RawEvent is one event as supplied by the external transport.
// Append-only: never mutated after ingest. SourceApp names the project
// the agent is working in; SessionID identifies one continuous agent
// run.
type RawEvent struct {
	SourceApp     string         `json:"source_app" cbor:"source_app"`
	SessionID     string         `json:"session_id" cbor:"session_id"`
	HookEventType string         `json:"hook_event_type" cbor:"hook_event_type"`
	Payload       map[string]any `json:"payload,omitempty" cbor:"payload,omitempty"`
	Chat          []ChatMessage  `json:"chat,omitempty" cbor:"chat,omitempty"`
	Summary       string         `json:"summary,omitempty" cbor:"summary,omitempty"`
	Timestamp     time.Time      `json:"timestamp" cbor:"timestamp"`
	ModelName     string         `json:"model_name,omitempty" cbor:"model_name,omitempty"`
	WorkingDir    string         `json:"cwd,omitempty" cbor:"cwd,omitempty"`
}

// IsTermination reports whether the event type ends a session
// immediately.
func IsTermination(hookEventType string) bool {
	return hookEventType == EventStop || hookEventType == EventSessionEnd
}

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// sessionState is a session plus the accumulators the engine needs for
// devlogs and metrics. Owned by the Engine, protected by its mutex.
type sessionState struct {
	schema.Session

	// history records (type, timestamp) per applied event, in arrival
	// order. Metrics are derived from it on demand.
	history []historyEvent

	// toolCounts tallies PreToolUse invocations per tool name for the
	// devlog breakdown; toolOutcomes tallies PostToolUse results for
	// success rates.
	toolCounts   map[string]int
	toolOutcomes map[string]*outcomeTally

	// filesChanged is deduplicated in first-seen order.
	filesChanged []string
	fileSeen     map[string]struct{}

	// commits holds commit subjects in chronological order.
	commits []string

	// devlogDone guards at-most-once devlog generation.
	devlogDone bool
}

type historyEvent struct {
	eventType string
	timestamp time.Time
}

type outcomeTally struct {
	successes int
	failures  int
}

func newSessionState(event schema.RawEvent) *sessionState {
	return &sessionState{
		Session: schema.Session{
			SessionID:   event.SessionID,
			ProjectName: event.SourceApp,
			SourceApp:   event.SourceApp,
			Status:      schema.StatusActive,
			StartedAt:   event.Timestamp,
			LastEventAt: event.Timestamp,
			ModelName:   event.ModelName,
			WorkingDir:  event.WorkingDir,
		},
		toolCounts:   make(map[string]int),
		toolOutcomes: make(map[string]*outcomeTally),
		fileSeen:     make(map[string]struct{}),
	}
}

// applyEvent runs the session state machine for one event on a
// non-terminal session. It returns true when the event terminated the
// session. Stopped sessions never reach here; the engine routes those
// to the bookkeeping-only path.
func (state *sessionState) applyEvent(event schema.RawEvent) (terminated bool) {
	state.history = append(state.history, historyEvent{
		eventType: event.HookEventType,
		timestamp: event.Timestamp,
	})

	if schema.IsTermination(event.HookEventType) {
		// The terminating event moves last_event_at but does not count
		// as session activity.
		state.touch(event.Timestamp)
		state.Status = schema.StatusStopped
		return true
	}

	state.touch(event.Timestamp)
	state.EventCount++

	switch event.HookEventType {
	case schema.EventNotification:
		state.Status = schema.StatusWaiting
	case schema.EventPreCompact:
		// Bookkeeping only: status unchanged, even from idle/waiting.
		state.recordCompaction(event.Timestamp)
	default:
		// Any other activity reactivates idle and waiting sessions.
		state.Status = schema.StatusActive
	}

	if event.ModelName != "" {
		state.ModelName = event.ModelName
	}
	if event.WorkingDir != "" {
		state.WorkingDir = event.WorkingDir
	}

	return false
}

// touch advances last_event_at monotonically: an out-of-order event
// with an older timestamp never moves it backwards.
func (state *sessionState) touch(timestamp time.Time) {
	if timestamp.After(state.LastEventAt) {
		state.LastEventAt = timestamp
	}
}

func (state *sessionState) recordCompaction(timestamp time.Time) {
	state.CompactionCount++
	state.LastCompactionAt = timestamp
	state.CompactionHistory = append(state.CompactionHistory, timestamp)
	if len(state.CompactionHistory) > schema.CompactionHistoryCap {
		state.CompactionHistory = state.CompactionHistory[len(state.CompactionHistory)-schema.CompactionHistoryCap:]
	}
}

// setBranch updates the session's branch and the derived task context.
func (state *sessionState) setBranch(branch string) {
	if branch == "" || branch == state.Branch {
		return
	}
	state.Branch = branch
	state.TaskContext = DeriveTaskContext(branch)
}

// addFile records a mutated file path, deduplicated in first-seen
// order.
func (state *sessionState) addFile(path string) {
	if _, seen := state.fileSeen[path]; seen {
		return
	}
	state.fileSeen[path] = struct{}{}
	state.filesChanged = append(state.filesChanged, path)
}

func (state *sessionState) recordToolUse(name string) {
	state.toolCounts[name]++
}

func (state *sessionState) recordToolOutcome(name string, success bool) {
	tally := state.toolOutcomes[name]
	if tally == nil {
		tally = &outcomeTally{}
		state.toolOutcomes[name] = tally
	}
	if success {
		tally.successes++
	} else {
		tally.failures++
	}
}

// snapshot returns a copy safe to hand across the broadcast boundary.
func (state *sessionState) snapshot() schema.Session {
	session := state.Session
	session.CompactionHistory = append([]time.Time(nil), state.CompactionHistory...)
	return session
}

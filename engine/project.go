// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// applyProjectSignals folds one event's extracted signals into a
// project.
// Returns true when anything changed.
func applyProjectSignals(project *schema.Project, signals Signals, at time.Time) bool {
	changed := false

	if signals.Branch != "" && signals.Branch != project.CurrentBranch {
		project.CurrentBranch = signals.Branch
		changed = true
	}

	if signals.Test != nil {
		// Last write wins, unknown included: a run the classifier
		// cannot read still supersedes a stale verdict.
		if project.TestStatus != signals.Test.Status || project.TestSummary != signals.Test.Summary {
			project.TestStatus = signals.Test.Status
			project.TestSummary = signals.Test.Summary
			changed = true
		}
	}

	if signals.DevServer != nil {
		mergeDevServer(project, *signals.DevServer, at)
		changed = true
	}

	return changed
}

// mergeDevServer upserts a server observation keyed by port.
func mergeDevServer(project *schema.Project, signal DevServerSignal, at time.Time) {
	for i := range project.DevServers {
		if project.DevServers[i].Port == signal.Port {
			project.DevServers[i].Kind = signal.Kind
			project.DevServers[i].LastSeen = at
			return
		}
	}
	project.DevServers = append(project.DevServers, schema.DevServer{
		Port:     signal.Port,
		Kind:     signal.Kind,
		LastSeen: at,
	})
}

// recomputeProject refreshes the materialized fields of a project from
// the full session set: the live-session count and the most recent
// activity. Called after every mutation that can change a session's
// status or last_event_at, so the view never drifts from the truth.
// Returns true when either field changed.
func recomputeProject(project *schema.Project, sessions map[string]*sessionState) bool {
	live := 0
	var lastActivity time.Time
	for _, state := range sessions {
		if state.ProjectName != project.Name {
			continue
		}
		if state.Status.Live() {
			live++
		}
		if state.LastEventAt.After(lastActivity) {
			lastActivity = state.LastEventAt
		}
	}

	changed := false
	if project.ActiveSessions != live {
		project.ActiveSessions = live
		changed = true
	}
	if lastActivity.After(project.LastActivity) {
		project.LastActivity = lastActivity
		changed = true
	}
	return changed
}

func projectSnapshot(project *schema.Project) schema.Project {
	snapshot := *project
	snapshot.DevServers = append([]schema.DevServer(nil), project.DevServers...)
	return snapshot
}

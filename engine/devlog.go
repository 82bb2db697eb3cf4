// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// buildDevLog assembles the end-of-session summary from accumulated
// session state. The caller holds the engine mutex and enforces the
// at-most-once guard; this function only composes the record. An
// agent-supplied summary on the terminating event wins over the
// composed one.
//
// A negative duration (clock skew between the session's first and last
// event) is clamped to zero; the caller logs the skew.
func buildDevLog(state *sessionState, endedAt time.Time, eventSummary string) schema.DevLog {
	duration := endedAt.Sub(state.StartedAt)
	if duration < 0 {
		duration = 0
	}

	summary := eventSummary
	if summary == "" {
		summary = composeSummary(state, duration)
	}

	return schema.DevLog{
		SessionID:       state.SessionID,
		ProjectName:     state.ProjectName,
		Branch:          state.Branch,
		Summary:         summary,
		FilesChanged:    append([]string(nil), state.filesChanged...),
		Commits:         append([]string(nil), state.commits...),
		StartedAt:       state.StartedAt,
		EndedAt:         endedAt,
		DurationMinutes: duration.Minutes(),
		EventCount:      state.EventCount,
		ToolBreakdown:   copyCounts(state.toolCounts),
	}
}

// composeSummary renders a one-line human-readable session summary:
// what was worked on, for how long, and what it produced.
func composeSummary(state *sessionState, duration time.Duration) string {
	var parts []string

	subject := state.TaskContext
	if subject == "" && state.Branch != "" {
		subject = state.Branch
	}
	if subject != "" {
		parts = append(parts, fmt.Sprintf("Worked on %s", subject))
	} else {
		parts = append(parts, fmt.Sprintf("Session on %s", state.ProjectName))
	}

	parts = append(parts, fmt.Sprintf("%s, %d events", formatDuration(duration), state.EventCount))

	if n := len(state.filesChanged); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s changed", n, plural(n, "file", "files")))
	}
	if n := len(state.commits); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", n, plural(n, "commit", "commits")))
	}

	return strings.Join(parts, "; ") + "."
}

func formatDuration(duration time.Duration) string {
	minutes := int(duration.Minutes())
	switch {
	case minutes < 1:
		return "under a minute"
	case minutes < 60:
		return fmt.Sprintf("%d min", minutes)
	default:
		return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
	}
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func copyCounts(counts map[string]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	copied := make(map[string]int, len(counts))
	for key, value := range counts {
		copied[key] = value
	}
	return copied
}

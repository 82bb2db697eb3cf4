// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

func TestComposeSummary(t *testing.T) {
	state := &sessionState{
		Session: schema.Session{
			SessionID:   "s1",
			ProjectName: "webapp",
			Branch:      "feature/login-form",
			TaskContext: "login form",
			EventCount:  42,
		},
		filesChanged: []string{"/src/a.go", "/src/b.go", "/src/c.go"},
		commits:      []string{"add login form"},
	}

	summary := composeSummary(state, 95*time.Minute)
	for _, want := range []string{"login form", "1h35m", "42 events", "3 files changed", "1 commit"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary %q missing %q", summary, want)
		}
	}
}

func TestComposeSummaryWithoutTask(t *testing.T) {
	state := &sessionState{
		Session: schema.Session{
			SessionID:   "s1",
			ProjectName: "webapp",
			EventCount:  3,
		},
	}

	summary := composeSummary(state, 30*time.Second)
	if !strings.Contains(summary, "webapp") {
		t.Errorf("summary %q missing project name", summary)
	}
	if !strings.Contains(summary, "under a minute") {
		t.Errorf("summary %q missing duration", summary)
	}
	if strings.Contains(summary, "0 files") || strings.Contains(summary, "0 commits") {
		t.Errorf("summary %q mentions empty totals", summary)
	}
}

func TestBuildDevLogSnapshotsState(t *testing.T) {
	state := &sessionState{
		Session: schema.Session{
			SessionID:   "s1",
			ProjectName: "webapp",
			Branch:      "fix/typo",
			StartedAt:   testStart,
			EventCount:  5,
		},
		filesChanged: []string{"/src/a.go"},
		commits:      []string{"fix typo"},
		toolCounts:   map[string]int{"Edit": 2, "Bash": 3},
	}

	devlog := buildDevLog(state, testStart.Add(10*time.Minute), "")

	if devlog.DurationMinutes != 10 {
		t.Fatalf("duration_minutes = %v, want 10", devlog.DurationMinutes)
	}
	if devlog.ToolBreakdown["Edit"] != 2 || devlog.ToolBreakdown["Bash"] != 3 {
		t.Fatalf("tool_breakdown = %v", devlog.ToolBreakdown)
	}

	// Later mutation of the session state must not leak into the log.
	state.filesChanged[0] = "/mutated"
	state.toolCounts["Edit"] = 99
	if devlog.FilesChanged[0] != "/src/a.go" {
		t.Fatal("files_changed aliases session state")
	}
	if devlog.ToolBreakdown["Edit"] != 2 {
		t.Fatal("tool_breakdown aliases session state")
	}
}

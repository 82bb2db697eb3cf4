// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

func TestConflictRequiresTwoSessions(t *testing.T) {
	index := newConflictIndex(30 * time.Minute)
	now := testStart

	if conflict := index.record("/src/main.go", "webapp", "s1", schema.AccessWrite, now); conflict != nil {
		t.Fatalf("single session produced conflict: %+v", conflict)
	}
	// Same session touching again is still not a conflict.
	if conflict := index.record("/src/main.go", "webapp", "s1", schema.AccessWrite, now.Add(time.Minute)); conflict != nil {
		t.Fatalf("same session repeat produced conflict: %+v", conflict)
	}

	conflict := index.record("/src/main.go", "webapp", "s2", schema.AccessWrite, now.Add(2*time.Minute))
	if conflict == nil {
		t.Fatal("two sessions writing did not produce a conflict")
	}
	if len(conflict.Accesses) != 2 {
		t.Fatalf("accesses = %d, want 2", len(conflict.Accesses))
	}
}

func TestConflictSeverity(t *testing.T) {
	now := testStart

	type touch struct {
		project string
		session string
		access  schema.AccessType
	}
	tests := []struct {
		name    string
		touches []touch
		want    schema.ConflictSeverity
	}{
		{
			name: "writes across projects",
			touches: []touch{
				{"webapp", "s1", schema.AccessWrite},
				{"api", "s2", schema.AccessWrite},
			},
			want: schema.SeverityHigh,
		},
		{
			name: "write and read across projects",
			touches: []touch{
				{"webapp", "s1", schema.AccessWrite},
				{"api", "s2", schema.AccessRead},
			},
			want: schema.SeverityMedium,
		},
		{
			name: "two writes same project",
			touches: []touch{
				{"webapp", "s1", schema.AccessWrite},
				{"webapp", "s2", schema.AccessWrite},
			},
			want: schema.SeverityMedium,
		},
		{
			name: "read only overlap",
			touches: []touch{
				{"webapp", "s1", schema.AccessRead},
				{"api", "s2", schema.AccessRead},
			},
			want: schema.SeverityLow,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			index := newConflictIndex(30 * time.Minute)
			var conflict *schema.FileConflict
			for i, touch := range test.touches {
				conflict = index.record("/shared.go", touch.project, touch.session,
					touch.access, now.Add(time.Duration(i)*time.Second))
			}
			if conflict == nil {
				t.Fatal("no conflict detected")
			}
			if conflict.Severity != test.want {
				t.Fatalf("severity = %s, want %s", conflict.Severity, test.want)
			}
		})
	}
}

func TestConflictWindowEviction(t *testing.T) {
	index := newConflictIndex(30 * time.Minute)
	now := testStart

	index.record("/shared.go", "webapp", "s1", schema.AccessWrite, now)
	if conflict := index.record("/shared.go", "api", "s2", schema.AccessWrite, now.Add(time.Minute)); conflict == nil {
		t.Fatal("expected conflict inside window")
	}

	// s1's access ages out of the window; s2 alone is no conflict.
	if conflict := index.record("/shared.go", "api", "s2", schema.AccessWrite, now.Add(31*time.Minute)); conflict != nil {
		t.Fatalf("conflict survived window eviction: %+v", conflict)
	}
	if got := index.conflicts(); len(got) != 0 {
		t.Fatalf("active conflicts = %d, want 0", len(got))
	}
}

func TestConflictDismissal(t *testing.T) {
	index := newConflictIndex(30 * time.Minute)
	now := testStart

	index.record("/shared.go", "webapp", "s1", schema.AccessWrite, now)
	index.record("/shared.go", "api", "s2", schema.AccessWrite, now.Add(time.Second))

	if !index.dismiss("/shared.go") {
		t.Fatal("dismiss returned false for active conflict")
	}
	if index.dismiss("/missing.go") {
		t.Fatal("dismiss returned true for unknown path")
	}

	// Re-touch by the same set: stays dismissed, no delta.
	if conflict := index.record("/shared.go", "webapp", "s1", schema.AccessWrite, now.Add(2*time.Second)); conflict != nil {
		t.Fatalf("dismissed conflict re-emitted for same access set: %+v", conflict)
	}

	// A new session changes the access set: the conflict re-surfaces.
	conflict := index.record("/shared.go", "cli", "s3", schema.AccessWrite, now.Add(3*time.Second))
	if conflict == nil {
		t.Fatal("new access did not re-surface the dismissed conflict")
	}
	if conflict.Dismissed {
		t.Fatal("re-surfaced conflict still flagged dismissed")
	}
	if conflict.Severity != schema.SeverityHigh {
		t.Fatalf("severity = %s, want high", conflict.Severity)
	}
}

func TestConflictFingerprintIgnoresTimestamps(t *testing.T) {
	now := testStart
	entries := []accessEntry{
		{project: "webapp", session: "s1", accessType: schema.AccessWrite, lastAccess: now},
		{project: "api", session: "s2", accessType: schema.AccessRead, lastAccess: now},
	}
	first := accessFingerprint("/shared.go", entries)

	entries[0].lastAccess = now.Add(time.Hour)
	entries[0], entries[1] = entries[1], entries[0]
	second := accessFingerprint("/shared.go", entries)

	if first != second {
		t.Fatalf("fingerprint changed with timestamps/order: %s vs %s", first, second)
	}

	entries = append(entries, accessEntry{project: "cli", session: "s3", accessType: schema.AccessWrite})
	third := accessFingerprint("/shared.go", entries)
	if third == first {
		t.Fatal("fingerprint did not change with a new access")
	}
}

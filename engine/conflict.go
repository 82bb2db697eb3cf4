// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/zeebo/blake3"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// DefaultConflictWindow is the sliding window within which overlapping
// file accesses from distinct sessions count as a conflict.
const DefaultConflictWindow = 30 * time.Minute

// conflictIndex maintains, per file path, a bounded recency window of
// access entries and the currently detected conflicts. It is owned by
// the Engine and protected by the Engine's mutex.
type conflictIndex struct {
	window time.Duration

	// accesses holds the window entries per path, one per (session,
	// access type) pair, ordered by first appearance.
	accesses map[string][]accessEntry

	// active holds the current conflict per path, if any.
	active map[string]*schema.FileConflict

	// dismissed maps an access-set fingerprint to the dismissal flag.
	// A new access changes the fingerprint, so the conflict
	// re-surfaces after dismissal when the pattern actually changes.
	dismissed map[string]bool
}

type accessEntry struct {
	project    string
	session    string
	accessType schema.AccessType
	lastAccess time.Time
}

func newConflictIndex(window time.Duration) *conflictIndex {
	if window <= 0 {
		window = DefaultConflictWindow
	}
	return &conflictIndex{
		window:    window,
		accesses:  make(map[string][]accessEntry),
		active:    make(map[string]*schema.FileConflict),
		dismissed: make(map[string]bool),
	}
}

// record notes one file access and returns the updated conflict for
// the path, or nil when the path has no conflict (fewer than two
// distinct sessions in the window) or the conflict is unchanged or
// dismissed.
func (index *conflictIndex) record(path, project, session string, accessType schema.AccessType, now time.Time) *schema.FileConflict {
	entries := index.accesses[path]

	// Merge with an existing (session, access type) entry, keeping
	// first-appearance order; otherwise append.
	merged := false
	for i := range entries {
		if entries[i].session == session && entries[i].accessType == accessType {
			entries[i].lastAccess = now
			entries[i].project = project
			merged = true
			break
		}
	}
	if !merged {
		entries = append(entries, accessEntry{
			project:    project,
			session:    session,
			accessType: accessType,
			lastAccess: now,
		})
	}

	entries = evictStale(entries, now.Add(-index.window))
	index.accesses[path] = entries

	if countDistinctSessions(entries) < 2 {
		delete(index.active, path)
		return nil
	}

	fingerprint := accessFingerprint(path, entries)

	previous := index.active[path]
	if previous != nil && previous.Fingerprint == fingerprint {
		// Same access set: refresh timestamps in place, no new epoch.
		previous.Accesses = accessList(entries)
		if index.dismissed[fingerprint] {
			return nil
		}
		return previous
	}

	conflict := &schema.FileConflict{
		FilePath:    path,
		Severity:    classifySeverity(entries),
		Accesses:    accessList(entries),
		DetectedAt:  now,
		Dismissed:   index.dismissed[fingerprint],
		Fingerprint: fingerprint,
	}
	index.active[path] = conflict

	if conflict.Dismissed {
		return nil
	}
	return conflict
}

// dismiss marks the current conflict for a path as dismissed. The
// dismissal sticks to the access-set fingerprint: recomputation with
// the same set stays quiet, a materially new access re-surfaces.
// Returns false when the path has no active conflict.
func (index *conflictIndex) dismiss(path string) bool {
	conflict, ok := index.active[path]
	if !ok {
		return false
	}
	conflict.Dismissed = true
	index.dismissed[conflict.Fingerprint] = true
	return true
}

// conflicts returns the active conflicts sorted by path. Dismissed
// conflicts are included with their flag set; filtering is the
// caller's concern.
func (index *conflictIndex) conflicts() []schema.FileConflict {
	paths := make([]string, 0, len(index.active))
	for path := range index.active {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	result := make([]schema.FileConflict, 0, len(paths))
	for _, path := range paths {
		result = append(result, *index.active[path])
	}
	return result
}

func evictStale(entries []accessEntry, cutoff time.Time) []accessEntry {
	kept := entries[:0]
	for _, entry := range entries {
		if !entry.lastAccess.Before(cutoff) {
			kept = append(kept, entry)
		}
	}
	return kept
}

func countDistinctSessions(entries []accessEntry) int {
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		seen[entry.session] = struct{}{}
	}
	return len(seen)
}

// classifySeverity ranks the access pattern: two writes from different
// projects is high; a write plus anything from a different project, or
// multiple writes within one project, is medium; read-only overlap is
// low.
func classifySeverity(entries []accessEntry) schema.ConflictSeverity {
	var writes []accessEntry
	for _, entry := range entries {
		if entry.accessType == schema.AccessWrite {
			writes = append(writes, entry)
		}
	}

	if len(writes) == 0 {
		return schema.SeverityLow
	}

	crossProjectWrites := false
	for i := range writes {
		for j := i + 1; j < len(writes); j++ {
			if writes[i].project != writes[j].project {
				crossProjectWrites = true
			}
		}
	}
	if crossProjectWrites {
		return schema.SeverityHigh
	}
	if len(writes) >= 2 {
		// Multiple writers inside one project.
		return schema.SeverityMedium
	}

	// One writer: medium if any other project is reading.
	for _, entry := range entries {
		if entry.accessType == schema.AccessRead && entry.project != writes[0].project {
			return schema.SeverityMedium
		}
	}
	// One writer plus readers from the same project still means two
	// sessions on one file.
	return schema.SeverityMedium
}

func accessList(entries []accessEntry) []schema.FileAccess {
	accesses := make([]schema.FileAccess, len(entries))
	for i, entry := range entries {
		accesses[i] = schema.FileAccess{
			ProjectName: entry.project,
			AgentID:     entry.session,
			AccessType:  entry.accessType,
			LastAccess:  entry.lastAccess,
		}
	}
	return accesses
}

// accessFingerprint hashes the path plus the sorted (project, session,
// access type) triples. Timestamps are deliberately excluded: repeated
// touches by the same set do not re-surface a dismissed conflict.
func accessFingerprint(path string, entries []accessEntry) string {
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.project + "\x00" + entry.session + "\x00" + string(entry.accessType)
	}
	sort.Strings(keys)

	hasher := blake3.New()
	hasher.WriteString(path)
	for _, key := range keys {
		hasher.WriteString("\x1f")
		hasher.WriteString(key)
	}
	digest := hasher.Sum(nil)
	return hex.EncodeToString(digest[:16])
}

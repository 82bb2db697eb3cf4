// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// AccessType classifies how a session touched a file.
type AccessType string

const (
	AccessRead  AccessType = "read"
	AccessWrite AccessType = "write"
)

// ConflictSeverity ranks how dangerous an overlapping access pattern
// is.
type ConflictSeverity string

const (
	// SeverityLow: read/read overlap only.
	SeverityLow ConflictSeverity = "low"

	// SeverityMedium: a write plus reads from different projects, or
	// multiple writes within the same project.
	SeverityMedium ConflictSeverity = "medium"

	// SeverityHigh: two writes from different projects.
	SeverityHigh ConflictSeverity = "high"
)

// FileAccess is one entry in a conflict's access list. AgentID is the
// session that performed the access.
type FileAccess struct {
	ProjectName string     `json:"project_name" cbor:"project_name"`
	AgentID     string     `json:"agent_id" cbor:"agent_id"`
	AccessType  AccessType `json:"access_type" cbor:"access_type"`
	LastAccess  time.Time  `json:"last_access" cbor:"last_access"`
}

// FileConflict records two or more distinct sessions touching the same
// file within the detection window. A materially changed access
// pattern supersedes the record with a new DetectedAt epoch.
// Fingerprint identifies the access set so a dismissal suppresses
// re-emission until a new access changes the set.
type FileConflict struct {
	FilePath    string           `json:"file_path" cbor:"file_path"`
	Severity    ConflictSeverity `json:"severity" cbor:"severity"`
	Accesses    []FileAccess     `json:"accesses" cbor:"accesses"`
	DetectedAt  time.Time        `json:"detected_at" cbor:"detected_at"`
	Dismissed   bool             `json:"dismissed" cbor:"dismissed"`
	Fingerprint string           `json:"fingerprint" cbor:"fingerprint"`
}

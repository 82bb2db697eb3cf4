// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// TestStatus classifies the most recent test-result signal observed
// for a project.
type TestStatus string

const (
	TestPassing TestStatus = "passing"
	TestFailing TestStatus = "failing"
	TestUnknown TestStatus = "unknown"
)

// DevServer is one development server observed running for a project,
// keyed by port. Re-observing a port refreshes LastSeen rather than
// duplicating the entry.
type DevServer struct {
	Port     int       `json:"port" cbor:"port"`
	Kind     string    `json:"kind" cbor:"kind"`
	LastSeen time.Time `json:"last_seen" cbor:"last_seen"`
}

// Project is the derived per-project state. ActiveSessions is a
// materialized view of the session set: always recomputed from live
// session statuses, never an independent source of truth. Created on
// the first event referencing an unseen project name; never deleted
// while the process runs.
type Project struct {
	Name string `json:"name" cbor:"name"`
	Path string `json:"path,omitempty" cbor:"path,omitempty"`

	CurrentBranch  string    `json:"current_branch,omitempty" cbor:"current_branch,omitempty"`
	ActiveSessions int       `json:"active_sessions" cbor:"active_sessions"`
	LastActivity   time.Time `json:"last_activity,omitzero" cbor:"last_activity,omitempty"`

	TestStatus  TestStatus `json:"test_status" cbor:"test_status"`
	TestSummary string     `json:"test_summary,omitempty" cbor:"test_summary,omitempty"`

	DevServers []DevServer `json:"dev_servers,omitempty" cbor:"dev_servers,omitempty"`

	// DeploymentStatus is opaque, supplied by an external poller and
	// carried through unmodified.
	DeploymentStatus string `json:"deployment_status,omitempty" cbor:"deployment_status,omitempty"`
}

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/lib/clock"
	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// Default aging thresholds. A session with no events for the idle
// threshold goes idle; past the stop threshold it is stopped.
const (
	DefaultIdleThreshold = 2 * time.Minute
	DefaultStopThreshold = 10 * time.Minute
)

// Store is the persistence boundary. All writes are best-effort from
// the engine's point of view: a failure is logged and the in-memory
// state remains authoritative.
type Store interface {
	UpsertSession(ctx context.Context, session schema.Session) error
	UpsertProject(ctx context.Context, project schema.Project) error
	UpsertConflict(ctx context.Context, conflict schema.FileConflict) error
	AppendDevLog(ctx context.Context, devlog schema.DevLog) error
	AppendEvent(ctx context.Context, event schema.RawEvent) error
}

// Config carries the engine's dependencies and tuning. Zero values
// take defaults; Store may be nil for a purely in-memory engine.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger
	Store  Store

	IdleThreshold  time.Duration
	StopThreshold  time.Duration
	ConflictWindow time.Duration

	// SubscriberBuffer sizes each subscriber's delta ring.
	SubscriberBuffer int
}

// Engine owns all derived state: the session and project maps and the
// conflict index, behind one mutex. Event arrival and reconciliation
// share that mutex, so the two mutation paths can never race on a
// session. Deltas are collected under the lock and published to the
// broadcaster after it is released.
type Engine struct {
	clock       clock.Clock
	logger      *slog.Logger
	store       Store
	broadcaster *Broadcaster

	idleThreshold time.Duration
	stopThreshold time.Duration

	mu        sync.Mutex
	sessions  map[string]*sessionState
	projects  map[string]*schema.Project
	conflicts *conflictIndex
}

// New builds an engine from the config, applying defaults for any
// zero field.
func New(config Config) *Engine {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.IdleThreshold <= 0 {
		config.IdleThreshold = DefaultIdleThreshold
	}
	if config.StopThreshold <= 0 {
		config.StopThreshold = DefaultStopThreshold
	}

	return &Engine{
		clock:         config.Clock,
		logger:        config.Logger,
		store:         config.Store,
		broadcaster:   NewBroadcaster(config.SubscriberBuffer, config.Logger),
		idleThreshold: config.IdleThreshold,
		stopThreshold: config.StopThreshold,
		sessions:      make(map[string]*sessionState),
		projects:      make(map[string]*schema.Project),
		conflicts:     newConflictIndex(config.ConflictWindow),
	}
}

// Subscribe registers a delta consumer on the broadcast boundary.
func (e *Engine) Subscribe() *Subscriber {
	return e.broadcaster.Subscribe()
}

// Close shuts down the broadcast fan-out. The engine's state remains
// readable through the snapshot accessors.
func (e *Engine) Close() {
	e.broadcaster.Close()
}

// HandleEvent runs one raw event through the full enrichment path:
// normalize, apply the session state machine, fold signals into the
// project, detect conflicts, generate the devlog on termination, and
// persist. The resulting deltas are published and returned.
//
// A validation failure returns ErrValidation with no state mutated. A
// duplicate termination returns ErrDuplicateTermination; the event is
// still recorded for audit.
func (e *Engine) HandleEvent(ctx context.Context, raw schema.RawEvent) ([]schema.Delta, error) {
	event, err := Normalize(raw, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("engine: handle event: %w", err)
	}

	e.mu.Lock()
	deltas, err := e.applyEvent(ctx, event)
	e.mu.Unlock()

	e.broadcaster.Publish(deltas)
	return deltas, err
}

// applyEvent is the serialized mutation path. Caller holds e.mu.
func (e *Engine) applyEvent(ctx context.Context, event schema.RawEvent) ([]schema.Delta, error) {
	e.persistEvent(ctx, event)

	state, exists := e.sessions[event.SessionID]
	if exists && state.Status == schema.StatusStopped {
		return e.applyToStopped(ctx, state, event)
	}
	if !exists {
		state = newSessionState(event)
		e.sessions[event.SessionID] = state
		// The creating event counts as activity even when it is not a
		// SessionStart.
	}
	project := e.getOrCreateProject(state.ProjectName, event.WorkingDir)

	terminated := state.applyEvent(event)

	signals := Extract(event)
	state.setBranch(signals.Branch)
	if event.HookEventType == schema.EventPreToolUse {
		if name, ok := event.Payload["tool_name"].(string); ok && name != "" {
			state.recordToolUse(name)
		}
	}
	if signals.Tool != nil {
		state.recordToolOutcome(signals.Tool.Name, signals.Tool.Success)
	}
	state.commits = append(state.commits, signals.Commits...)

	var deltas []schema.Delta

	for _, touch := range signals.FileTouches {
		if touch.Access == schema.AccessWrite {
			state.addFile(touch.Path)
		}
		conflict := e.conflicts.record(
			touch.Path, state.ProjectName, state.SessionID, touch.Access, event.Timestamp)
		if conflict != nil {
			e.persistConflict(ctx, *conflict)
			deltas = append(deltas, schema.Delta{Kind: schema.DeltaConflict, Data: *conflict})
		}
	}

	applyProjectSignals(project, signals, event.Timestamp)
	recomputeProject(project, e.sessions)

	if terminated {
		if devlog := e.generateDevLog(ctx, state, event.Timestamp, event.Summary); devlog != nil {
			deltas = append(deltas, schema.Delta{Kind: schema.DeltaDevLog, Data: *devlog})
		}
	}

	e.persistSession(ctx, state)
	e.persistProject(ctx, project)

	deltas = append(deltas,
		schema.Delta{Kind: schema.DeltaSession, Data: state.snapshot()},
		schema.Delta{Kind: schema.DeltaProject, Data: projectSnapshot(project)},
	)
	return deltas, nil
}

// applyToStopped handles an event for a terminal session: compaction
// and audit bookkeeping only. The status is never resurrected and a
// repeated termination trips the duplicate guard.
func (e *Engine) applyToStopped(ctx context.Context, state *sessionState, event schema.RawEvent) ([]schema.Delta, error) {
	if schema.IsTermination(event.HookEventType) {
		e.logger.Warn("duplicate termination ignored",
			"session_id", state.SessionID,
			"hook_event_type", event.HookEventType)
		return nil, fmt.Errorf("engine: session %s: %w", state.SessionID, ErrDuplicateTermination)
	}

	if event.HookEventType != schema.EventPreCompact {
		return nil, nil
	}

	state.recordCompaction(event.Timestamp)
	e.persistSession(ctx, state)
	return []schema.Delta{{Kind: schema.DeltaSession, Data: state.snapshot()}}, nil
}

// Reconcile runs one aging pass over every non-terminal session:
// sessions quiet past the idle threshold go idle, sessions quiet past
// the stop threshold stop and get their devlog. A failure on one
// session is logged and does not abort the pass. Deltas are published
// and returned.
func (e *Engine) Reconcile(ctx context.Context) []schema.Delta {
	now := e.clock.Now()

	e.mu.Lock()
	deltas := e.reconcileLocked(ctx, now)
	e.mu.Unlock()

	e.broadcaster.Publish(deltas)
	return deltas
}

func (e *Engine) reconcileLocked(ctx context.Context, now time.Time) []schema.Delta {
	var deltas []schema.Delta
	touchedProjects := make(map[string]struct{})

	for _, id := range e.sessionIDs() {
		state := e.sessions[id]
		if state.Status == schema.StatusStopped {
			continue
		}

		quiet := now.Sub(state.LastEventAt)
		switch {
		case quiet >= e.stopThreshold:
			state.Status = schema.StatusStopped
			// Activity ended at the last event, not at this tick.
			if devlog := e.generateDevLog(ctx, state, state.LastEventAt, ""); devlog != nil {
				deltas = append(deltas, schema.Delta{Kind: schema.DeltaDevLog, Data: *devlog})
			}
		case quiet >= e.idleThreshold && state.Status != schema.StatusIdle:
			state.Status = schema.StatusIdle
		default:
			continue
		}

		e.persistSession(ctx, state)
		deltas = append(deltas, schema.Delta{Kind: schema.DeltaSession, Data: state.snapshot()})
		touchedProjects[state.ProjectName] = struct{}{}
	}

	for name := range touchedProjects {
		project := e.projects[name]
		if recomputeProject(project, e.sessions) {
			e.persistProject(ctx, project)
			deltas = append(deltas, schema.Delta{Kind: schema.DeltaProject, Data: projectSnapshot(project)})
		}
	}
	return deltas
}

// sessionIDs returns the session keys sorted, so reconciliation order
// and therefore delta order is deterministic.
func (e *Engine) sessionIDs() []string {
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// generateDevLog builds and persists the devlog, at most once per
// session. Returns nil when the guard has already tripped.
func (e *Engine) generateDevLog(ctx context.Context, state *sessionState, endedAt time.Time, summary string) *schema.DevLog {
	if state.devlogDone {
		return nil
	}
	state.devlogDone = true

	if endedAt.Before(state.StartedAt) {
		e.logger.Warn("clock skew: session ended before it started, clamping duration",
			"session_id", state.SessionID,
			"started_at", state.StartedAt,
			"ended_at", endedAt)
	}

	devlog := buildDevLog(state, endedAt, summary)
	if e.store != nil {
		if err := e.store.AppendDevLog(ctx, devlog); err != nil {
			e.logger.Error("store: append devlog", "session_id", state.SessionID, "error", err)
		}
	}
	return &devlog
}

// DismissConflict marks the active conflict on a path as dismissed.
// The dismissal is keyed to the current access set: the same set stays
// quiet, a new access re-surfaces the conflict. Returns false when the
// path has no active conflict.
func (e *Engine) DismissConflict(ctx context.Context, path string) bool {
	e.mu.Lock()
	ok := e.conflicts.dismiss(path)
	var delta []schema.Delta
	if ok {
		conflict := *e.conflicts.active[path]
		e.persistConflict(ctx, conflict)
		delta = []schema.Delta{{Kind: schema.DeltaConflict, Data: conflict}}
	}
	e.mu.Unlock()

	e.broadcaster.Publish(delta)
	return ok
}

// SessionMetrics computes metrics for one session on demand from its
// recorded history. The bool is false for an unknown session.
func (e *Engine) SessionMetrics(sessionID string) (schema.SessionMetrics, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.sessions[sessionID]
	if !ok {
		return schema.SessionMetrics{}, false
	}
	return computeMetrics(state), true
}

// Session returns a snapshot of one session.
func (e *Engine) Session(sessionID string) (schema.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.sessions[sessionID]
	if !ok {
		return schema.Session{}, false
	}
	return state.snapshot(), true
}

// Sessions returns snapshots of every session, sorted by session ID.
func (e *Engine) Sessions() []schema.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions := make([]schema.Session, 0, len(e.sessions))
	for _, id := range e.sessionIDs() {
		sessions = append(sessions, e.sessions[id].snapshot())
	}
	return sessions
}

// Projects returns snapshots of every project, sorted by name.
func (e *Engine) Projects() []schema.Project {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.projects))
	for name := range e.projects {
		names = append(names, name)
	}
	sort.Strings(names)

	projects := make([]schema.Project, 0, len(names))
	for _, name := range names {
		projects = append(projects, projectSnapshot(e.projects[name]))
	}
	return projects
}

// Conflicts returns the active conflicts, sorted by path. Dismissed
// conflicts are included with their flag set.
func (e *Engine) Conflicts() []schema.FileConflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conflicts.conflicts()
}

func (e *Engine) getOrCreateProject(name, path string) *schema.Project {
	project, ok := e.projects[name]
	if !ok {
		project = &schema.Project{
			Name:       name,
			Path:       path,
			TestStatus: schema.TestUnknown,
		}
		e.projects[name] = project
	} else if project.Path == "" && path != "" {
		project.Path = path
	}
	return project
}

// Best-effort persistence. The in-memory state stays authoritative;
// failures are logged and never propagate to the event sender.

func (e *Engine) persistEvent(ctx context.Context, event schema.RawEvent) {
	if e.store == nil {
		return
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		e.logger.Error("store: append event", "session_id", event.SessionID, "error", err)
	}
}

func (e *Engine) persistSession(ctx context.Context, state *sessionState) {
	if e.store == nil {
		return
	}
	if err := e.store.UpsertSession(ctx, state.snapshot()); err != nil {
		e.logger.Error("store: upsert session", "session_id", state.SessionID, "error", err)
	}
}

func (e *Engine) persistProject(ctx context.Context, project *schema.Project) {
	if e.store == nil {
		return
	}
	if err := e.store.UpsertProject(ctx, projectSnapshot(project)); err != nil {
		e.logger.Error("store: upsert project", "project", project.Name, "error", err)
	}
}

func (e *Engine) persistConflict(ctx context.Context, conflict schema.FileConflict) {
	if e.store == nil {
		return
	}
	if err := e.store.UpsertConflict(ctx, conflict); err != nil {
		e.logger.Error("store: upsert conflict", "file_path", conflict.FilePath, "error", err)
	}
}

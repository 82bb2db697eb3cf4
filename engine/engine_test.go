// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/lib/clock"
	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

var testStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore records every persistence call for assertions.
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]schema.Session
	projects  map[string]schema.Project
	conflicts map[string]schema.FileConflict
	devlogs   []schema.DevLog
	events    []schema.RawEvent
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[string]schema.Session),
		projects:  make(map[string]schema.Project),
		conflicts: make(map[string]schema.FileConflict),
	}
}

func (s *memStore) UpsertSession(_ context.Context, session schema.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

func (s *memStore) UpsertProject(_ context.Context, project schema.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.Name] = project
	return nil
}

func (s *memStore) UpsertConflict(_ context.Context, conflict schema.FileConflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[conflict.FilePath] = conflict
	return nil
}

func (s *memStore) AppendDevLog(_ context.Context, devlog schema.DevLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devlogs = append(s.devlogs, devlog)
	return nil
}

func (s *memStore) AppendEvent(_ context.Context, event schema.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) devlogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devlogs)
}

func newTestEngine(t *testing.T) (*Engine, *clock.FakeClock, *memStore) {
	t.Helper()
	fake := clock.Fake(testStart)
	store := newMemStore()
	engine := New(Config{
		Clock:  fake,
		Logger: discardLogger(),
		Store:  store,
	})
	t.Cleanup(engine.Close)
	return engine, fake, store
}

func testEvent(session, eventType string, at time.Time) schema.RawEvent {
	return schema.RawEvent{
		SourceApp:     "webapp",
		SessionID:     session,
		HookEventType: eventType,
		Payload:       map[string]any{},
		Timestamp:     at,
	}
}

func handle(t *testing.T, engine *Engine, event schema.RawEvent) []schema.Delta {
	t.Helper()
	deltas, err := engine.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent(%s): %v", event.HookEventType, err)
	}
	return deltas
}

func TestSessionLifecycleScenario(t *testing.T) {
	engine, _, store := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))

	write := testEvent("s1", schema.EventPostToolUse, testStart.Add(time.Minute))
	write.Payload = map[string]any{
		"tool_name":     "Write",
		"tool_input":    map[string]any{"file_path": "/src/auth.go"},
		"tool_response": map[string]any{"success": true},
	}
	handle(t, engine, write)

	project, ok := projectByName(engine, "webapp")
	if !ok {
		t.Fatal("project webapp not created")
	}
	if project.ActiveSessions != 1 {
		t.Fatalf("active_sessions = %d, want 1", project.ActiveSessions)
	}

	handle(t, engine, testEvent("s1", schema.EventStop, testStart.Add(2*time.Minute)))

	session, ok := engine.Session("s1")
	if !ok {
		t.Fatal("session s1 not found")
	}
	if session.Status != schema.StatusStopped {
		t.Fatalf("status = %s, want stopped", session.Status)
	}
	if session.EventCount != 2 {
		t.Fatalf("event_count = %d, want 2 (termination does not count)", session.EventCount)
	}

	project, _ = projectByName(engine, "webapp")
	if project.ActiveSessions != 0 {
		t.Fatalf("active_sessions after stop = %d, want 0", project.ActiveSessions)
	}

	if store.devlogCount() != 1 {
		t.Fatalf("devlog count = %d, want 1", store.devlogCount())
	}
	devlog := store.devlogs[0]
	if !reflect.DeepEqual(devlog.FilesChanged, []string{"/src/auth.go"}) {
		t.Fatalf("files_changed = %v, want [/src/auth.go]", devlog.FilesChanged)
	}
	if devlog.EventCount != 2 {
		t.Fatalf("devlog event_count = %d, want 2", devlog.EventCount)
	}
	if devlog.DurationMinutes != 2 {
		t.Fatalf("duration_minutes = %v, want 2", devlog.DurationMinutes)
	}
}

func TestNotificationMovesToWaitingAndBack(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	handle(t, engine, testEvent("s1", schema.EventNotification, testStart.Add(time.Second)))

	session, _ := engine.Session("s1")
	if session.Status != schema.StatusWaiting {
		t.Fatalf("status after Notification = %s, want waiting", session.Status)
	}
	if session.EventCount != 2 {
		t.Fatalf("event_count = %d, want 2 (Notification still counts)", session.EventCount)
	}

	handle(t, engine, testEvent("s1", schema.EventPreToolUse, testStart.Add(2*time.Second)))

	session, _ = engine.Session("s1")
	if session.Status != schema.StatusActive {
		t.Fatalf("status after PreToolUse = %s, want active", session.Status)
	}
}

func TestDuplicateTerminationGuard(t *testing.T) {
	engine, _, store := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	handle(t, engine, testEvent("s1", schema.EventStop, testStart.Add(time.Minute)))

	_, err := engine.HandleEvent(context.Background(),
		testEvent("s1", schema.EventSessionEnd, testStart.Add(2*time.Minute)))
	if !errors.Is(err, ErrDuplicateTermination) {
		t.Fatalf("replayed termination error = %v, want ErrDuplicateTermination", err)
	}

	if store.devlogCount() != 1 {
		t.Fatalf("devlog count after replay = %d, want 1", store.devlogCount())
	}
	session, _ := engine.Session("s1")
	if session.Status != schema.StatusStopped {
		t.Fatalf("status = %s, want stopped", session.Status)
	}
}

func TestValidationRejectsIncompleteEvents(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	tests := []struct {
		name  string
		event schema.RawEvent
	}{
		{"missing source_app", schema.RawEvent{SessionID: "s1", HookEventType: schema.EventStop}},
		{"missing session_id", schema.RawEvent{SourceApp: "webapp", HookEventType: schema.EventStop}},
		{"missing hook_event_type", schema.RawEvent{SourceApp: "webapp", SessionID: "s1"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := engine.HandleEvent(context.Background(), test.event)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
		})
	}

	if got := len(engine.Sessions()); got != 0 {
		t.Fatalf("sessions created by invalid events: %d", got)
	}
}

func TestZeroTimestampDefaultsToClock(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	event := testEvent("s1", schema.EventSessionStart, time.Time{})
	handle(t, engine, event)

	session, _ := engine.Session("s1")
	if !session.StartedAt.Equal(testStart) {
		t.Fatalf("started_at = %v, want clock now %v", session.StartedAt, testStart)
	}
}

func TestLastEventAtIsMonotonic(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart.Add(time.Minute)))
	// Delivered late, stamped earlier.
	handle(t, engine, testEvent("s1", schema.EventPreToolUse, testStart))

	session, _ := engine.Session("s1")
	if !session.LastEventAt.Equal(testStart.Add(time.Minute)) {
		t.Fatalf("last_event_at = %v, want %v", session.LastEventAt, testStart.Add(time.Minute))
	}
	if session.EventCount != 2 {
		t.Fatalf("event_count = %d, want 2", session.EventCount)
	}
}

func TestPreCompactBookkeeping(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	handle(t, engine, testEvent("s1", schema.EventNotification, testStart.Add(time.Second)))
	handle(t, engine, testEvent("s1", schema.EventPreCompact, testStart.Add(2*time.Second)))

	session, _ := engine.Session("s1")
	if session.Status != schema.StatusWaiting {
		t.Fatalf("PreCompact changed status to %s, want waiting unchanged", session.Status)
	}
	if session.CompactionCount != 1 {
		t.Fatalf("compaction_count = %d, want 1", session.CompactionCount)
	}
	if !session.LastCompactionAt.Equal(testStart.Add(2 * time.Second)) {
		t.Fatalf("last_compaction_at = %v", session.LastCompactionAt)
	}
	if session.EventCount != 3 {
		t.Fatalf("event_count = %d, want 3", session.EventCount)
	}
}

func TestCompactionHistoryCapped(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	for i := 0; i < schema.CompactionHistoryCap+5; i++ {
		handle(t, engine, testEvent("s1", schema.EventPreCompact, testStart.Add(time.Duration(i+1)*time.Second)))
	}

	session, _ := engine.Session("s1")
	if session.CompactionCount != schema.CompactionHistoryCap+5 {
		t.Fatalf("compaction_count = %d", session.CompactionCount)
	}
	if len(session.CompactionHistory) != schema.CompactionHistoryCap {
		t.Fatalf("history length = %d, want %d", len(session.CompactionHistory), schema.CompactionHistoryCap)
	}
	// Oldest evicted first.
	oldest := session.CompactionHistory[0]
	if !oldest.Equal(testStart.Add(6 * time.Second)) {
		t.Fatalf("oldest retained compaction = %v", oldest)
	}
}

func TestStoppedSessionAcceptsCompactionOnly(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	handle(t, engine, testEvent("s1", schema.EventStop, testStart.Add(time.Minute)))

	// Ordinary activity must not resurrect the session.
	handle(t, engine, testEvent("s1", schema.EventPreToolUse, testStart.Add(2*time.Minute)))
	session, _ := engine.Session("s1")
	if session.Status != schema.StatusStopped {
		t.Fatalf("status = %s, want stopped", session.Status)
	}
	if session.EventCount != 1 {
		t.Fatalf("event_count = %d, want 1 (post-stop activity not counted)", session.EventCount)
	}

	handle(t, engine, testEvent("s1", schema.EventPreCompact, testStart.Add(3*time.Minute)))
	session, _ = engine.Session("s1")
	if session.CompactionCount != 1 {
		t.Fatalf("compaction_count = %d, want 1", session.CompactionCount)
	}
	if session.Status != schema.StatusStopped {
		t.Fatalf("status = %s, want stopped", session.Status)
	}
}

func TestReconcileAgesSessions(t *testing.T) {
	engine, fake, store := newTestEngine(t)
	ctx := context.Background()

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))

	// Inside the idle threshold: nothing changes.
	fake.Advance(DefaultIdleThreshold - time.Second)
	if deltas := engine.Reconcile(ctx); len(deltas) != 0 {
		t.Fatalf("premature reconcile deltas: %v", deltas)
	}

	fake.Advance(time.Second)
	engine.Reconcile(ctx)
	session, _ := engine.Session("s1")
	if session.Status != schema.StatusIdle {
		t.Fatalf("status after idle threshold = %s, want idle", session.Status)
	}

	fake.Advance(DefaultStopThreshold - DefaultIdleThreshold)
	engine.Reconcile(ctx)
	session, _ = engine.Session("s1")
	if session.Status != schema.StatusStopped {
		t.Fatalf("status after stop threshold = %s, want stopped", session.Status)
	}

	if store.devlogCount() != 1 {
		t.Fatalf("devlog count = %d, want 1", store.devlogCount())
	}
	// Timer stops end at the last event, so a session with only its
	// creating event has zero duration.
	if got := store.devlogs[0].DurationMinutes; got != 0 {
		t.Fatalf("duration_minutes = %v, want 0", got)
	}

	project, _ := projectByName(engine, "webapp")
	if project.ActiveSessions != 0 {
		t.Fatalf("active_sessions = %d, want 0", project.ActiveSessions)
	}
}

func TestReconcileAgesWaitingSessions(t *testing.T) {
	engine, fake, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	handle(t, engine, testEvent("s1", schema.EventNotification, testStart))

	fake.Advance(DefaultIdleThreshold)
	engine.Reconcile(context.Background())

	session, _ := engine.Session("s1")
	if session.Status != schema.StatusIdle {
		t.Fatalf("waiting session after idle threshold = %s, want idle", session.Status)
	}
}

func TestActivityReactivatesIdleSession(t *testing.T) {
	engine, fake, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	fake.Advance(DefaultIdleThreshold)
	engine.Reconcile(context.Background())

	handle(t, engine, testEvent("s1", schema.EventPostToolUse, fake.Now()))
	session, _ := engine.Session("s1")
	if session.Status != schema.StatusActive {
		t.Fatalf("status after fresh activity = %s, want active", session.Status)
	}
}

func TestActiveSessionsMaterializedView(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	handle(t, engine, testEvent("s2", schema.EventSessionStart, testStart))

	project, _ := projectByName(engine, "webapp")
	if project.ActiveSessions != 2 {
		t.Fatalf("active_sessions = %d, want 2", project.ActiveSessions)
	}

	handle(t, engine, testEvent("s1", schema.EventStop, testStart.Add(time.Minute)))
	project, _ = projectByName(engine, "webapp")
	if project.ActiveSessions != 1 {
		t.Fatalf("active_sessions = %d, want 1", project.ActiveSessions)
	}

	handle(t, engine, testEvent("s2", schema.EventNotification, testStart.Add(time.Minute)))
	// Waiting still counts as live.
	project, _ = projectByName(engine, "webapp")
	if project.ActiveSessions != 1 {
		t.Fatalf("active_sessions with waiting = %d, want 1", project.ActiveSessions)
	}
}

func TestBranchSignalUpdatesSessionAndProject(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	event := testEvent("s1", schema.EventPreToolUse, testStart)
	event.Payload = map[string]any{
		"tool_name":  "Bash",
		"tool_input": map[string]any{"command": "git checkout -b feature/login-form"},
	}
	handle(t, engine, event)

	session, _ := engine.Session("s1")
	if session.Branch != "feature/login-form" {
		t.Fatalf("branch = %q", session.Branch)
	}
	if session.TaskContext != "login form" {
		t.Fatalf("task_context = %q, want %q", session.TaskContext, "login form")
	}

	project, _ := projectByName(engine, "webapp")
	if project.CurrentBranch != "feature/login-form" {
		t.Fatalf("project branch = %q", project.CurrentBranch)
	}
}

func TestDevServerMergedByPort(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	launch := func(at time.Time) {
		event := testEvent("s1", schema.EventPreToolUse, at)
		event.Payload = map[string]any{
			"tool_name":  "Bash",
			"tool_input": map[string]any{"command": "npm run dev"},
		}
		handle(t, engine, event)
	}

	launch(testStart)
	launch(testStart.Add(time.Minute))

	project, _ := projectByName(engine, "webapp")
	if len(project.DevServers) != 1 {
		t.Fatalf("dev servers = %d, want 1 (merged by port)", len(project.DevServers))
	}
	server := project.DevServers[0]
	if server.Port != 3000 || server.Kind != "node" {
		t.Fatalf("server = %+v", server)
	}
	if !server.LastSeen.Equal(testStart.Add(time.Minute)) {
		t.Fatalf("last_seen not refreshed: %v", server.LastSeen)
	}
}

func TestDevLogPrefersEventSummary(t *testing.T) {
	engine, _, store := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	stop := testEvent("s1", schema.EventStop, testStart.Add(time.Minute))
	stop.Summary = "Implemented login form validation"
	handle(t, engine, stop)

	if store.devlogs[0].Summary != "Implemented login form validation" {
		t.Fatalf("summary = %q", store.devlogs[0].Summary)
	}
}

func TestDevLogClampsNegativeDuration(t *testing.T) {
	engine, _, store := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	// Terminating event stamped before the session start.
	handle(t, engine, testEvent("s1", schema.EventStop, testStart.Add(-time.Hour)))

	if got := store.devlogs[0].DurationMinutes; got != 0 {
		t.Fatalf("duration_minutes = %v, want 0 (clamped)", got)
	}
}

func TestMetricsAreDeterministic(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))
	handle(t, engine, testEvent("s1", schema.EventUserPromptSubmit, testStart.Add(10*time.Second)))

	post := testEvent("s1", schema.EventPostToolUse, testStart.Add(30*time.Second))
	post.Payload = map[string]any{
		"tool_name":     "Bash",
		"tool_response": map[string]any{"exit_code": float64(0)},
	}
	handle(t, engine, post)

	first, ok := engine.SessionMetrics("s1")
	if !ok {
		t.Fatal("metrics for unknown session")
	}
	second, _ := engine.SessionMetrics("s1")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recomputed metrics differ:\n%+v\n%+v", first, second)
	}

	if first.Turns.Count != 1 {
		t.Fatalf("turns = %d, want 1", first.Turns.Count)
	}
	if first.Turns.Max != 20*time.Second {
		t.Fatalf("turn duration = %v, want 20s", first.Turns.Max)
	}
	stats := first.ToolStats["Bash"]
	if stats.Successes != 1 || stats.SuccessRate != 100 {
		t.Fatalf("Bash stats = %+v", stats)
	}
}

func TestDeltasReachSubscribers(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	subscriber := engine.Subscribe()
	defer subscriber.Close()

	handle(t, engine, testEvent("s1", schema.EventSessionStart, testStart))

	<-subscriber.Ready()
	var kinds []schema.DeltaKind
	for {
		delta, ok := subscriber.Next()
		if !ok {
			break
		}
		kinds = append(kinds, delta.Kind)
	}
	if !reflect.DeepEqual(kinds, []schema.DeltaKind{schema.DeltaSession, schema.DeltaProject}) {
		t.Fatalf("delta kinds = %v", kinds)
	}
}

func projectByName(engine *Engine, name string) (schema.Project, bool) {
	for _, project := range engine.Projects() {
		if project.Name == name {
			return project, true
		}
	}
	return schema.Project{}, false
}

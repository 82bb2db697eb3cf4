// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/DarrenJCoxon/devpulse-sub002/lib/codec"
	"github.com/DarrenJCoxon/devpulse-sub002/lib/sqlitepool"
	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// Store is the SQLite persistence layer. It implements engine.Store
// for the write path and exposes query methods for the read path.
//
// Store is safe for concurrent use; each method borrows its own pooled
// connection.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. Use ":memory:" with PoolSize 1
	// for tests.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Open creates the store, creating the schema on first use of each
// connection.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("store: Logger is required")
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      cfg.Path,
		PoolSize:  cfg.PoolSize,
		Logger:    cfg.Logger,
		OnConnect: createSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{pool: pool, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func createSchema(conn *sqlite.Conn) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id         TEXT PRIMARY KEY,
			project_name       TEXT NOT NULL,
			source_app         TEXT NOT NULL,
			status             TEXT NOT NULL,
			started_at         INTEGER NOT NULL,
			last_event_at      INTEGER NOT NULL,
			event_count        INTEGER NOT NULL,
			model_name         TEXT,
			working_dir        TEXT,
			branch             TEXT,
			task_context       TEXT,
			compaction_count   INTEGER NOT NULL DEFAULT 0,
			last_compaction_at INTEGER,
			compaction_history BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_name, last_event_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

		CREATE TABLE IF NOT EXISTS projects (
			name              TEXT PRIMARY KEY,
			path              TEXT,
			current_branch    TEXT,
			active_sessions   INTEGER NOT NULL DEFAULT 0,
			last_activity     INTEGER,
			test_status       TEXT NOT NULL DEFAULT 'unknown',
			test_summary      TEXT,
			dev_servers       BLOB,
			deployment_status TEXT
		);

		CREATE TABLE IF NOT EXISTS conflicts (
			file_path   TEXT PRIMARY KEY,
			severity    TEXT NOT NULL,
			accesses    BLOB NOT NULL,
			detected_at INTEGER NOT NULL,
			dismissed   INTEGER NOT NULL DEFAULT 0,
			fingerprint TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS devlogs (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id       TEXT NOT NULL,
			project_name     TEXT NOT NULL,
			branch           TEXT,
			summary          TEXT NOT NULL,
			files_changed    BLOB,
			commits          BLOB,
			started_at       INTEGER NOT NULL,
			ended_at         INTEGER NOT NULL,
			duration_minutes REAL NOT NULL,
			event_count      INTEGER NOT NULL,
			tool_breakdown   BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_devlogs_project ON devlogs(project_name, ended_at);
		CREATE INDEX IF NOT EXISTS idx_devlogs_session ON devlogs(session_id);

		CREATE TABLE IF NOT EXISTS events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			source_app      TEXT NOT NULL,
			session_id      TEXT NOT NULL,
			hook_event_type TEXT NOT NULL,
			timestamp       INTEGER NOT NULL,
			model_name      TEXT,
			working_dir     TEXT,
			summary         TEXT,
			payload         BLOB,
			payload_enc     TEXT,
			chat            BLOB,
			chat_enc        TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_time ON events(timestamp);
	`
	if err := sqlitex.ExecuteScript(conn, ddl, nil); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}

// UpsertSession writes a session keyed by session_id.
func (s *Store) UpsertSession(ctx context.Context, session schema.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}
	defer s.pool.Put(conn)

	history, err := marshalBlob(session.CompactionHistory, len(session.CompactionHistory) > 0)
	if err != nil {
		return fmt.Errorf("store: marshal compaction history: %w", err)
	}

	err = sqlitex.Execute(conn, `INSERT INTO sessions
		(session_id, project_name, source_app, status, started_at,
		 last_event_at, event_count, model_name, working_dir, branch,
		 task_context, compaction_count, last_compaction_at, compaction_history)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			project_name = excluded.project_name,
			source_app = excluded.source_app,
			status = excluded.status,
			started_at = excluded.started_at,
			last_event_at = excluded.last_event_at,
			event_count = excluded.event_count,
			model_name = excluded.model_name,
			working_dir = excluded.working_dir,
			branch = excluded.branch,
			task_context = excluded.task_context,
			compaction_count = excluded.compaction_count,
			last_compaction_at = excluded.last_compaction_at,
			compaction_history = excluded.compaction_history`,
		&sqlitex.ExecOptions{Args: []any{
			session.SessionID,
			session.ProjectName,
			session.SourceApp,
			string(session.Status),
			timeToMillis(session.StartedAt),
			timeToMillis(session.LastEventAt),
			session.EventCount,
			session.ModelName,
			session.WorkingDir,
			session.Branch,
			session.TaskContext,
			session.CompactionCount,
			timeToMillis(session.LastCompactionAt),
			history,
		}})
	if err != nil {
		return fmt.Errorf("store: upsert session %s: %w", session.SessionID, err)
	}
	return nil
}

// UpsertProject writes a project keyed by name.
func (s *Store) UpsertProject(ctx context.Context, project schema.Project) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert project: %w", err)
	}
	defer s.pool.Put(conn)

	servers, err := marshalBlob(project.DevServers, len(project.DevServers) > 0)
	if err != nil {
		return fmt.Errorf("store: marshal dev servers: %w", err)
	}

	err = sqlitex.Execute(conn, `INSERT INTO projects
		(name, path, current_branch, active_sessions, last_activity,
		 test_status, test_summary, dev_servers, deployment_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			current_branch = excluded.current_branch,
			active_sessions = excluded.active_sessions,
			last_activity = excluded.last_activity,
			test_status = excluded.test_status,
			test_summary = excluded.test_summary,
			dev_servers = excluded.dev_servers,
			deployment_status = excluded.deployment_status`,
		&sqlitex.ExecOptions{Args: []any{
			project.Name,
			project.Path,
			project.CurrentBranch,
			project.ActiveSessions,
			timeToMillis(project.LastActivity),
			string(project.TestStatus),
			project.TestSummary,
			servers,
			project.DeploymentStatus,
		}})
	if err != nil {
		return fmt.Errorf("store: upsert project %s: %w", project.Name, err)
	}
	return nil
}

// UpsertConflict writes the current conflict for a file path.
func (s *Store) UpsertConflict(ctx context.Context, conflict schema.FileConflict) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert conflict: %w", err)
	}
	defer s.pool.Put(conn)

	accesses, err := codec.Marshal(conflict.Accesses)
	if err != nil {
		return fmt.Errorf("store: marshal conflict accesses: %w", err)
	}

	err = sqlitex.Execute(conn, `INSERT INTO conflicts
		(file_path, severity, accesses, detected_at, dismissed, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			severity = excluded.severity,
			accesses = excluded.accesses,
			detected_at = excluded.detected_at,
			dismissed = excluded.dismissed,
			fingerprint = excluded.fingerprint`,
		&sqlitex.ExecOptions{Args: []any{
			conflict.FilePath,
			string(conflict.Severity),
			accesses,
			timeToMillis(conflict.DetectedAt),
			boolToInt(conflict.Dismissed),
			conflict.Fingerprint,
		}})
	if err != nil {
		return fmt.Errorf("store: upsert conflict %s: %w", conflict.FilePath, err)
	}
	return nil
}

// AppendDevLog inserts a devlog. Devlogs are append-only.
func (s *Store) AppendDevLog(ctx context.Context, devlog schema.DevLog) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: append devlog: %w", err)
	}
	defer s.pool.Put(conn)

	files, err := marshalBlob(devlog.FilesChanged, len(devlog.FilesChanged) > 0)
	if err != nil {
		return fmt.Errorf("store: marshal files_changed: %w", err)
	}
	commits, err := marshalBlob(devlog.Commits, len(devlog.Commits) > 0)
	if err != nil {
		return fmt.Errorf("store: marshal commits: %w", err)
	}
	breakdown, err := marshalBlob(devlog.ToolBreakdown, len(devlog.ToolBreakdown) > 0)
	if err != nil {
		return fmt.Errorf("store: marshal tool_breakdown: %w", err)
	}

	err = sqlitex.Execute(conn, `INSERT INTO devlogs
		(session_id, project_name, branch, summary, files_changed, commits,
		 started_at, ended_at, duration_minutes, event_count, tool_breakdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			devlog.SessionID,
			devlog.ProjectName,
			devlog.Branch,
			devlog.Summary,
			files,
			commits,
			timeToMillis(devlog.StartedAt),
			timeToMillis(devlog.EndedAt),
			devlog.DurationMinutes,
			devlog.EventCount,
			breakdown,
		}})
	if err != nil {
		return fmt.Errorf("store: append devlog for %s: %w", devlog.SessionID, err)
	}
	return nil
}

// AppendEvent inserts a raw event. Events are append-only; payloads
// and chat transcripts are CBOR-encoded and compressed past the
// threshold.
func (s *Store) AppendEvent(ctx context.Context, event schema.RawEvent) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	defer s.pool.Put(conn)

	var payload any
	var payloadEnc any
	if len(event.Payload) > 0 {
		data, err := codec.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("store: marshal payload: %w", err)
		}
		blob, encoding := compressBlob(data)
		payload, payloadEnc = blob, encoding
	}

	var chat any
	var chatEnc any
	if len(event.Chat) > 0 {
		data, err := codec.Marshal(event.Chat)
		if err != nil {
			return fmt.Errorf("store: marshal chat: %w", err)
		}
		blob, encoding := compressBlob(data)
		chat, chatEnc = blob, encoding
	}

	err = sqlitex.Execute(conn, `INSERT INTO events
		(source_app, session_id, hook_event_type, timestamp, model_name,
		 working_dir, summary, payload, payload_enc, chat, chat_enc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			event.SourceApp,
			event.SessionID,
			event.HookEventType,
			timeToMillis(event.Timestamp),
			event.ModelName,
			event.WorkingDir,
			event.Summary,
			payload,
			payloadEnc,
			chat,
			chatEnc,
		}})
	if err != nil {
		return fmt.Errorf("store: append event for %s: %w", event.SessionID, err)
	}
	return nil
}

// Sessions returns sessions, optionally filtered by project, newest
// activity first.
func (s *Store) Sessions(ctx context.Context, project string) ([]schema.Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: query sessions: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT session_id, project_name, source_app, status, started_at,
		last_event_at, event_count, model_name, working_dir, branch,
		task_context, compaction_count, last_compaction_at, compaction_history
		FROM sessions`
	var args []any
	if project != "" {
		query += " WHERE project_name = ?"
		args = append(args, project)
	}
	query += " ORDER BY last_event_at DESC"

	var sessions []schema.Session
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			session, err := scanSession(stmt)
			if err != nil {
				return err
			}
			sessions = append(sessions, session)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: query sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(stmt *sqlite.Stmt) (schema.Session, error) {
	session := schema.Session{
		SessionID:        stmt.ColumnText(0),
		ProjectName:      stmt.ColumnText(1),
		SourceApp:        stmt.ColumnText(2),
		Status:           schema.SessionStatus(stmt.ColumnText(3)),
		StartedAt:        millisToTime(stmt.ColumnInt64(4)),
		LastEventAt:      millisToTime(stmt.ColumnInt64(5)),
		EventCount:       stmt.ColumnInt(6),
		ModelName:        stmt.ColumnText(7),
		WorkingDir:       stmt.ColumnText(8),
		Branch:           stmt.ColumnText(9),
		TaskContext:      stmt.ColumnText(10),
		CompactionCount:  stmt.ColumnInt(11),
		LastCompactionAt: millisToTime(stmt.ColumnInt64(12)),
	}
	if !stmt.ColumnIsNull(13) {
		blob := columnBlob(stmt, 13)
		if err := codec.Unmarshal(blob, &session.CompactionHistory); err != nil {
			return session, fmt.Errorf("unmarshal compaction history: %w", err)
		}
	}
	return session, nil
}

// Projects returns all projects, sorted by name.
func (s *Store) Projects(ctx context.Context) ([]schema.Project, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: query projects: %w", err)
	}
	defer s.pool.Put(conn)

	var projects []schema.Project
	err = sqlitex.Execute(conn, `SELECT name, path, current_branch,
		active_sessions, last_activity, test_status, test_summary,
		dev_servers, deployment_status
		FROM projects ORDER BY name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				project := schema.Project{
					Name:             stmt.ColumnText(0),
					Path:             stmt.ColumnText(1),
					CurrentBranch:    stmt.ColumnText(2),
					ActiveSessions:   stmt.ColumnInt(3),
					LastActivity:     millisToTime(stmt.ColumnInt64(4)),
					TestStatus:       schema.TestStatus(stmt.ColumnText(5)),
					TestSummary:      stmt.ColumnText(6),
					DeploymentStatus: stmt.ColumnText(8),
				}
				if !stmt.ColumnIsNull(7) {
					blob := columnBlob(stmt, 7)
					if err := codec.Unmarshal(blob, &project.DevServers); err != nil {
						return fmt.Errorf("unmarshal dev servers: %w", err)
					}
				}
				projects = append(projects, project)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: query projects: %w", err)
	}
	return projects, nil
}

// Conflicts returns stored conflicts, newest first. Dismissed
// conflicts are excluded unless includeDismissed is set.
func (s *Store) Conflicts(ctx context.Context, includeDismissed bool) ([]schema.FileConflict, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: query conflicts: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT file_path, severity, accesses, detected_at, dismissed, fingerprint
		FROM conflicts`
	if !includeDismissed {
		query += " WHERE dismissed = 0"
	}
	query += " ORDER BY detected_at DESC"

	var conflicts []schema.FileConflict
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			conflict := schema.FileConflict{
				FilePath:    stmt.ColumnText(0),
				Severity:    schema.ConflictSeverity(stmt.ColumnText(1)),
				DetectedAt:  millisToTime(stmt.ColumnInt64(3)),
				Dismissed:   stmt.ColumnInt(4) != 0,
				Fingerprint: stmt.ColumnText(5),
			}
			blob := columnBlob(stmt, 2)
			if err := codec.Unmarshal(blob, &conflict.Accesses); err != nil {
				return fmt.Errorf("unmarshal conflict accesses: %w", err)
			}
			conflicts = append(conflicts, conflict)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: query conflicts: %w", err)
	}
	return conflicts, nil
}

// DevLogs returns devlogs, optionally filtered by project, newest
// first. A non-positive limit defaults to 50.
func (s *Store) DevLogs(ctx context.Context, project string, limit int) ([]schema.DevLog, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: query devlogs: %w", err)
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT session_id, project_name, branch, summary, files_changed,
		commits, started_at, ended_at, duration_minutes, event_count, tool_breakdown
		FROM devlogs`
	var args []any
	if project != "" {
		query += " WHERE project_name = ?"
		args = append(args, project)
	}
	query += " ORDER BY ended_at DESC LIMIT ?"
	args = append(args, limit)

	var devlogs []schema.DevLog
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			devlog, err := scanDevLog(stmt)
			if err != nil {
				return err
			}
			devlogs = append(devlogs, devlog)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: query devlogs: %w", err)
	}
	return devlogs, nil
}

func scanDevLog(stmt *sqlite.Stmt) (schema.DevLog, error) {
	devlog := schema.DevLog{
		SessionID:       stmt.ColumnText(0),
		ProjectName:     stmt.ColumnText(1),
		Branch:          stmt.ColumnText(2),
		Summary:         stmt.ColumnText(3),
		StartedAt:       millisToTime(stmt.ColumnInt64(6)),
		EndedAt:         millisToTime(stmt.ColumnInt64(7)),
		DurationMinutes: stmt.ColumnFloat(8),
		EventCount:      stmt.ColumnInt(9),
	}
	if !stmt.ColumnIsNull(4) {
		if err := codec.Unmarshal(columnBlob(stmt, 4), &devlog.FilesChanged); err != nil {
			return devlog, fmt.Errorf("unmarshal files_changed: %w", err)
		}
	}
	if !stmt.ColumnIsNull(5) {
		if err := codec.Unmarshal(columnBlob(stmt, 5), &devlog.Commits); err != nil {
			return devlog, fmt.Errorf("unmarshal commits: %w", err)
		}
	}
	if !stmt.ColumnIsNull(10) {
		if err := codec.Unmarshal(columnBlob(stmt, 10), &devlog.ToolBreakdown); err != nil {
			return devlog, fmt.Errorf("unmarshal tool_breakdown: %w", err)
		}
	}
	return devlog, nil
}

// EventFilter selects events for the Events query. Zero fields are
// not applied.
type EventFilter struct {
	SessionID string
	StartMs   int64 // earliest timestamp, Unix milliseconds
	EndMs     int64 // latest timestamp, Unix milliseconds
	Limit     int   // default 100
}

// Events returns stored events matching the filter, newest first.
func (s *Store) Events(ctx context.Context, filter EventFilter) ([]schema.RawEvent, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer s.pool.Put(conn)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []any
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.StartMs > 0 {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.StartMs)
	}
	if filter.EndMs > 0 {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.EndMs)
	}

	query := `SELECT source_app, session_id, hook_event_type, timestamp,
		model_name, working_dir, summary, payload, payload_enc, chat, chat_enc
		FROM events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	var events []schema.RawEvent
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			event, err := scanEvent(stmt)
			if err != nil {
				return err
			}
			events = append(events, event)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	return events, nil
}

func scanEvent(stmt *sqlite.Stmt) (schema.RawEvent, error) {
	event := schema.RawEvent{
		SourceApp:     stmt.ColumnText(0),
		SessionID:     stmt.ColumnText(1),
		HookEventType: stmt.ColumnText(2),
		Timestamp:     millisToTime(stmt.ColumnInt64(3)),
		ModelName:     stmt.ColumnText(4),
		WorkingDir:    stmt.ColumnText(5),
		Summary:       stmt.ColumnText(6),
	}

	if !stmt.ColumnIsNull(7) {
		data, err := decompressBlob(columnBlob(stmt, 7), stmt.ColumnText(8))
		if err != nil {
			return event, err
		}
		if err := codec.Unmarshal(data, &event.Payload); err != nil {
			return event, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if !stmt.ColumnIsNull(9) {
		data, err := decompressBlob(columnBlob(stmt, 9), stmt.ColumnText(10))
		if err != nil {
			return event, err
		}
		if err := codec.Unmarshal(data, &event.Chat); err != nil {
			return event, fmt.Errorf("unmarshal chat: %w", err)
		}
	}
	return event, nil
}

// columnBlob copies a BLOB column out of the statement.
func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	blob := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, blob)
	return blob
}

// marshalBlob CBOR-encodes v when present is true, else returns nil so
// the column stores NULL.
func marshalBlob(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

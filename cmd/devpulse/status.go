// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/DarrenJCoxon/devpulse-sub002/lib/config"
	"github.com/DarrenJCoxon/devpulse-sub002/schema"
	"github.com/DarrenJCoxon/devpulse-sub002/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusStyles = map[schema.SessionStatus]lipgloss.Style{
		schema.StatusActive:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		schema.StatusIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		schema.StatusWaiting: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		schema.StatusStopped: dimStyle,
	}

	severityStyles = map[schema.ConflictSeverity]lipgloss.Style{
		schema.SeverityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		schema.SeverityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		schema.SeverityLow:    dimStyle,
	}

	testStyles = map[schema.TestStatus]lipgloss.Style{
		schema.TestPassing: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		schema.TestFailing: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		schema.TestUnknown: dimStyle,
	}
)

// runStatus reads the store and renders the project, session, and
// conflict tables.
func runStatus(cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(store.Config{
		Path:     cfg.DatabasePath,
		PoolSize: 1,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	projects, err := st.Projects(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	sessions, err := st.Sessions(ctx, "")
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	conflicts, err := st.Conflicts(ctx, false)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	out := os.Stdout
	now := time.Now()

	renderProjects(out, projects)
	renderSessions(out, sessions, now)
	renderConflicts(out, conflicts)
	return nil
}

func renderProjects(out io.Writer, projects []schema.Project) {
	fmt.Fprintln(out, titleStyle.Render("Projects"))
	if len(projects) == 0 {
		fmt.Fprintln(out, dimStyle.Render("  (none)"))
		fmt.Fprintln(out)
		return
	}

	rows := [][]string{{"NAME", "BRANCH", "SESSIONS", "TESTS", "SERVERS", "LAST ACTIVITY"}}
	for _, project := range projects {
		rows = append(rows, []string{
			project.Name,
			orDash(project.CurrentBranch),
			fmt.Sprintf("%d", project.ActiveSessions),
			testStyles[project.TestStatus].Render(string(project.TestStatus)),
			renderServers(project.DevServers),
			formatWhen(project.LastActivity),
		})
	}
	renderTable(out, rows)
}

func renderSessions(out io.Writer, sessions []schema.Session, now time.Time) {
	fmt.Fprintln(out, titleStyle.Render("Sessions"))
	if len(sessions) == 0 {
		fmt.Fprintln(out, dimStyle.Render("  (none)"))
		fmt.Fprintln(out)
		return
	}

	rows := [][]string{{"SESSION", "PROJECT", "STATUS", "TASK", "EVENTS", "QUIET"}}
	for _, session := range sessions {
		quiet := now.Sub(session.LastEventAt).Round(time.Second)
		if quiet < 0 {
			quiet = 0
		}
		rows = append(rows, []string{
			shorten(session.SessionID, 12),
			session.ProjectName,
			statusStyles[session.Status].Render(string(session.Status)),
			orDash(session.TaskContext),
			fmt.Sprintf("%d", session.EventCount),
			quiet.String(),
		})
	}
	renderTable(out, rows)
}

func renderConflicts(out io.Writer, conflicts []schema.FileConflict) {
	fmt.Fprintln(out, titleStyle.Render("Conflicts"))
	if len(conflicts) == 0 {
		fmt.Fprintln(out, dimStyle.Render("  (none)"))
		fmt.Fprintln(out)
		return
	}

	rows := [][]string{{"FILE", "SEVERITY", "SESSIONS", "DETECTED"}}
	for _, conflict := range conflicts {
		agents := make([]string, 0, len(conflict.Accesses))
		for _, access := range conflict.Accesses {
			agents = append(agents, fmt.Sprintf("%s(%s)", shorten(access.AgentID, 8), access.AccessType))
		}
		rows = append(rows, []string{
			conflict.FilePath,
			severityStyles[conflict.Severity].Render(string(conflict.Severity)),
			strings.Join(agents, " "),
			formatWhen(conflict.DetectedAt),
		})
	}
	renderTable(out, rows)
}

// renderTable prints rows with columns padded to their widest cell.
// Widths are measured with lipgloss so styled cells align.
func renderTable(out io.Writer, rows [][]string) {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	for rowIndex, row := range rows {
		var line strings.Builder
		line.WriteString("  ")
		for i, cell := range row {
			line.WriteString(cell)
			line.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
		}
		text := strings.TrimRight(line.String(), " ")
		if rowIndex == 0 {
			text = headerStyle.Render(text)
		}
		fmt.Fprintln(out, text)
	}
	fmt.Fprintln(out)
}

func renderServers(servers []schema.DevServer) string {
	if len(servers) == 0 {
		return "-"
	}
	parts := make([]string, len(servers))
	for i, server := range servers {
		parts[i] = fmt.Sprintf("%s:%d", server.Kind, server.Port)
	}
	return strings.Join(parts, " ")
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// Signals are the derived facts extracted from one event. Extractors
// are pure and never error: absence of a signal is a valid, silent
// result, and a malformed payload yields an empty Signals value.
type Signals struct {
	// Branch is the version-control branch observed in the event, if
	// any.
	Branch string

	// Test is a test-run classification, if the event carried output
	// from a recognized test runner.
	Test *TestResult

	// DevServer is a development server observed starting, if any.
	DevServer *DevServerSignal

	// FileTouches are the file paths this event read or mutated.
	FileTouches []FileTouch

	// Commits are commit subject lines, in the order they appear.
	Commits []string

	// Tool is the outcome of a completed tool invocation, if the event
	// was a PostToolUse with a recognizable result.
	Tool *ToolOutcome
}

// TestResult classifies command output from a test runner.
type TestResult struct {
	Status  schema.TestStatus
	Summary string
}

// DevServerSignal is a dev server recognized from a command.
type DevServerSignal struct {
	Port int
	Kind string
}

// FileTouch is one file access derived from a tool invocation.
type FileTouch struct {
	Path   string
	Access schema.AccessType
}

// ToolOutcome is the success/failure classification of a completed
// tool invocation, from the paired Pre/Post event's response payload.
type ToolOutcome struct {
	Name    string
	Success bool
}

// Extract runs every extractor against one normalized event.
func Extract(event schema.RawEvent) Signals {
	var signals Signals

	signals.Branch = extractBranch(event.Payload)
	signals.FileTouches = extractFileTouches(event.Payload)
	signals.Commits = extractCommits(event.Payload)

	command := commandText(event.Payload)
	if command != "" {
		signals.DevServer = detectDevServer(command)
		if isTestCommand(command) {
			output := responseText(event.Payload)
			signals.Test = classifyTestOutput(output)
		}
	}

	if event.HookEventType == schema.EventPostToolUse {
		signals.Tool = classifyToolOutcome(event.Payload)
	}

	return signals
}

// payloadString returns the first non-empty string value among the
// given top-level payload keys.
func payloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// toolInput returns the tool_input mapping, or nil.
func toolInput(payload map[string]any) map[string]any {
	input, _ := payload["tool_input"].(map[string]any)
	return input
}

// commandText returns the shell command from a tool invocation
// payload, or "".
func commandText(payload map[string]any) string {
	if input := toolInput(payload); input != nil {
		if command, ok := input["command"].(string); ok {
			return command
		}
	}
	return ""
}

// responseText returns the textual output of a completed tool
// invocation: tool_response.output, tool_response.stdout, or a plain
// string tool_response.
func responseText(payload map[string]any) string {
	switch response := payload["tool_response"].(type) {
	case string:
		return response
	case map[string]any:
		return payloadString(response, "output", "stdout")
	}
	return ""
}

// Branch extraction: an explicit payload field wins; otherwise a
// branch-changing git command is recognized.
var branchCommandPattern = regexp.MustCompile(
	`git\s+(?:checkout\s+-b|switch\s+(?:-c\s+)?)([\w./-]+)`)

func extractBranch(payload map[string]any) string {
	if branch := payloadString(payload, "branch", "git_branch"); branch != "" {
		return branch
	}

	command := commandText(payload)
	if command == "" {
		return ""
	}
	match := branchCommandPattern.FindStringSubmatch(command)
	if match == nil {
		return ""
	}
	branch := match[1]
	// "git switch -" returns to the previous branch; the name is
	// unknown from the command alone.
	if branch == "-" {
		return ""
	}
	return branch
}

// DeriveTaskContext turns a branch name into a human-readable task
// description: the conventional type prefix is stripped and word
// separators become spaces. "feature/login-form" → "login form".
func DeriveTaskContext(branch string) string {
	if branch == "" {
		return ""
	}
	name := branch
	for _, prefix := range []string{"feature/", "feat/", "fix/", "bugfix/", "hotfix/", "chore/"} {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

// Test classification. The command gate keeps arbitrary shell output
// from being misread as a test run; the output markers are ordered so
// an explicit zero-failure summary beats the broad failure patterns,
// and anything unrecognized stays unknown.
var testCommandMarkers = []string{
	"go test", "npm test", "npm run test", "pnpm test", "yarn test",
	"pytest", "jest", "vitest", "cargo test", "rspec", "mix test",
}

func isTestCommand(command string) bool {
	lowered := strings.ToLower(command)
	for _, marker := range testCommandMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

var (
	cleanPassMarkers = []string{"0 failed", "0 failures", "failures: 0", "failed: 0", "0 errors"}
	failingMarkers   = []string{"fail", "✗", "✖", "error", "assertion", "panic:"}
	passingMarkers   = []string{"pass", "✓", "all tests", "ok  ", "ok \t"}
)

func classifyTestOutput(output string) *TestResult {
	lowered := strings.ToLower(output)

	summary := firstLine(output)

	for _, marker := range cleanPassMarkers {
		if strings.Contains(lowered, marker) {
			return &TestResult{Status: schema.TestPassing, Summary: summary}
		}
	}
	for _, marker := range failingMarkers {
		if strings.Contains(lowered, marker) {
			return &TestResult{Status: schema.TestFailing, Summary: summary}
		}
	}
	for _, marker := range passingMarkers {
		if strings.Contains(lowered, marker) {
			return &TestResult{Status: schema.TestPassing, Summary: summary}
		}
	}
	return &TestResult{Status: schema.TestUnknown, Summary: summary}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		text = text[:index]
	}
	if len(text) > 120 {
		text = text[:120]
	}
	return text
}

// Dev server detection: an ordered command table maps a launch command
// to a server kind and conventional default port; an explicit port
// flag in the command overrides the default.
type devServerRule struct {
	marker      string
	kind        string
	defaultPort int
}

var devServerRules = []devServerRule{
	{"next dev", "next", 3000},
	{"vite", "vite", 5173},
	{"npm run dev", "node", 3000},
	{"pnpm dev", "node", 3000},
	{"yarn dev", "node", 3000},
	{"npm start", "node", 3000},
	{"flask run", "flask", 5000},
	{"rails server", "rails", 3000},
	{"rails s", "rails", 3000},
	{"uvicorn", "uvicorn", 8000},
	{"python -m http.server", "python", 8000},
	{"php -S", "php", 8080},
}

var portFlagPattern = regexp.MustCompile(`(?:--port[= ]|-p\s+|:)(\d{2,5})`)

func detectDevServer(command string) *DevServerSignal {
	for _, rule := range devServerRules {
		if !strings.Contains(command, rule.marker) {
			continue
		}
		port := rule.defaultPort
		if match := portFlagPattern.FindStringSubmatch(command); match != nil {
			if parsed, err := strconv.Atoi(match[1]); err == nil {
				port = parsed
			}
		}
		return &DevServerSignal{Port: port, Kind: rule.kind}
	}
	return nil
}

// File touches: file-mutating tools report a write access on their
// target path, read-only tools a read access.
var (
	writeTools = map[string]string{
		"Write":        "file_path",
		"Edit":         "file_path",
		"MultiEdit":    "file_path",
		"NotebookEdit": "notebook_path",
	}
	readTools = map[string]string{
		"Read": "file_path",
		"Grep": "path",
		"Glob": "path",
	}
)

func extractFileTouches(payload map[string]any) []FileTouch {
	toolName, _ := payload["tool_name"].(string)
	if toolName == "" {
		return nil
	}
	input := toolInput(payload)
	if input == nil {
		return nil
	}

	if pathKey, ok := writeTools[toolName]; ok {
		if path, ok := input[pathKey].(string); ok && path != "" {
			return []FileTouch{{Path: path, Access: schema.AccessWrite}}
		}
		return nil
	}
	if pathKey, ok := readTools[toolName]; ok {
		if path, ok := input[pathKey].(string); ok && path != "" {
			return []FileTouch{{Path: path, Access: schema.AccessRead}}
		}
	}
	return nil
}

// Commit extraction: subjects from -m/--message flags of a git commit
// command, in the order they appear.
var commitMessagePattern = regexp.MustCompile(
	`(?:-m|--message)[= ]\s*(?:"([^"]*)"|'([^']*)'|(\S+))`)

func extractCommits(payload map[string]any) []string {
	command := commandText(payload)
	if command == "" || !strings.Contains(command, "git commit") {
		return nil
	}

	var subjects []string
	for _, match := range commitMessagePattern.FindAllStringSubmatch(command, -1) {
		for _, group := range match[1:] {
			if group != "" {
				// Only the subject line of a multi-line message.
				subjects = append(subjects, firstLine(group))
				break
			}
		}
	}
	return subjects
}

// Tool outcome classification, from the PostToolUse response payload.
// Recognized shapes, in order: an explicit success boolean, an error
// field, an exit code. Anything else is no signal.
func classifyToolOutcome(payload map[string]any) *ToolOutcome {
	toolName, _ := payload["tool_name"].(string)
	if toolName == "" {
		return nil
	}

	response, ok := payload["tool_response"].(map[string]any)
	if !ok {
		return nil
	}

	if success, ok := response["success"].(bool); ok {
		return &ToolOutcome{Name: toolName, Success: success}
	}
	if errValue, ok := response["error"]; ok && errValue != nil && errValue != "" {
		return &ToolOutcome{Name: toolName, Success: false}
	}
	if code, ok := numericValue(response["exit_code"]); ok {
		return &ToolOutcome{Name: toolName, Success: code == 0}
	}
	return nil
}

// numericValue accepts the numeric types JSON and CBOR decoding
// produce for an any-typed target.
func numericValue(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// Package views derives per-branch snapshots and human-readable view files
// from the ledger.
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/types"
)

// SignalKind classifies a snapshot signal.
type SignalKind string

const (
	SignalNoteTodo     SignalKind = "note-todo"
	SignalNoteDecision SignalKind = "note-decision"
	SignalCmdFail      SignalKind = "cmd-fail"
)

// CommitEntry is one commit event rendered for the snapshot.
type CommitEntry struct {
	TS            string
	EventID       string
	Title         string
	Purpose       string
	PrevSummary   string
	Contribution  string
	EvidenceLines []string
	Labels        []string
}

// SignalEntry is one noteworthy event: an open todo, a decision, or a
// failing command.
type SignalEntry struct {
	TS         string
	Kind       SignalKind
	Text       string
	EventID    string
	Supersedes string
}

// MergeEntry is one merge event.
type MergeEntry struct {
	TS             string
	EventID        string
	Src            string
	Dst            string
	Reason         string
	AdoptedCommits []string
}

// TaskSnapshotEntry is one task from a session digest.
type TaskSnapshotEntry struct {
	Subject string
	Status  string
}

// SessionDigestEntry is a session-level summary carried in a note tagged
// session_digest.
type SessionDigestEntry struct {
	TS              string
	EventID         string
	SessionID       string
	ToolCalls       uint64
	ToolFailures    uint64
	UserPrompts     uint64
	DurationMinutes uint64
	FilesModified   []string
	FailedCommands  []string
	CommitsMade     []string
	TasksSnapshot   []TaskSnapshotEntry
	Outcome         string
	Notes           []string
}

// BranchSnapshot is the immutable derived view of one branch.
type BranchSnapshot struct {
	Branch            string
	CreatedAt         string
	LastEventID       string
	LastCommitID      string
	LastCommit        *CommitEntry
	Commits           []CommitEntry
	Signals           []SignalEntry
	Merges            []MergeEntry
	SessionDigests    []SessionDigestEntry
	UncommittedEvents int
}

// BuildBranchSnapshot derives a snapshot from the ledger for one branch.
func BuildBranchSnapshot(ctx context.Context, led storage.Ledger, branch string) (*BranchSnapshot, error) {
	all, err := led.IterEvents(ctx)
	if err != nil {
		return nil, err
	}

	var branchEvents []types.Event
	for _, e := range all {
		if e.Branch == branch {
			branchEvents = append(branchEvents, e)
		}
	}

	createdAt := ""
	if len(branchEvents) > 0 {
		createdAt = branchEvents[0].TS
	} else {
		// Fall back to the branch_create event naming this branch.
		for _, e := range all {
			if e.EventType == types.TypeBranchCreate && e.PayloadString("name") == branch {
				createdAt = e.TS
				break
			}
		}
	}

	snap := &BranchSnapshot{Branch: branch, CreatedAt: createdAt}
	lastCommitIndex := -1

	for idx, e := range branchEvents {
		switch e.EventType {
		case types.TypeCommit:
			lastCommitIndex = idx
			snap.Commits = append(snap.Commits, commitEntry(&e))
		case types.TypeNote:
			snap.collectNoteSignals(&e)
		case types.TypeCmd:
			if entry, ok := cmdFailSignal(&e); ok {
				snap.Signals = append(snap.Signals, entry)
			}
		case types.TypeMerge:
			snap.Merges = append(snap.Merges, MergeEntry{
				TS:             e.TS,
				EventID:        e.EventID,
				Src:            e.PayloadString("src"),
				Dst:            e.PayloadString("dst"),
				Reason:         e.PayloadString("reason"),
				AdoptedCommits: e.PayloadStrings("adopted_commits"),
			})
		}
	}

	if n := len(branchEvents); n > 0 {
		snap.LastEventID = branchEvents[n-1].EventID
	}
	if n := len(snap.Commits); n > 0 {
		last := snap.Commits[n-1]
		snap.LastCommit = &last
		snap.LastCommitID = last.EventID
	}
	if lastCommitIndex >= 0 {
		snap.UncommittedEvents = len(branchEvents) - lastCommitIndex - 1
	} else {
		snap.UncommittedEvents = len(branchEvents)
	}
	return snap, nil
}

func commitEntry(e *types.Event) CommitEntry {
	var evidenceLines []string
	if arr, ok := e.Payload["evidence"].([]any); ok {
		for _, item := range arr {
			if line, ok := formatEvidenceItem(item); ok {
				evidenceLines = append(evidenceLines, line)
			}
		}
	}
	return CommitEntry{
		TS:            e.TS,
		EventID:       e.EventID,
		Title:         e.PayloadString("title"),
		Purpose:       e.PayloadString("purpose"),
		PrevSummary:   e.PayloadString("prev_summary"),
		Contribution:  e.PayloadString("contribution"),
		EvidenceLines: evidenceLines,
		Labels:        e.PayloadStrings("labels"),
	}
}

// formatEvidenceItem renders an evidence item, which is either a plain
// string or an {event_id|blob, why} object.
func formatEvidenceItem(item any) (string, bool) {
	if s, ok := item.(string); ok {
		return s, true
	}
	obj, ok := item.(map[string]any)
	if !ok {
		return "", false
	}
	why, _ := obj["why"].(string)
	why = strings.TrimSpace(why)
	for _, key := range []string{"event_id", "blob"} {
		if target, ok := obj[key].(string); ok && target != "" {
			if why == "" {
				return target, true
			}
			return target + ": " + why, true
		}
	}
	return "", false
}

func (s *BranchSnapshot) collectNoteSignals(e *types.Event) {
	if e.HasTag("todo") {
		s.Signals = append(s.Signals, SignalEntry{
			TS:      e.TS,
			Kind:    SignalNoteTodo,
			Text:    e.PayloadString("text"),
			EventID: e.EventID,
		})
	}
	if e.HasTag("decision") {
		s.Signals = append(s.Signals, SignalEntry{
			TS:         e.TS,
			Kind:       SignalNoteDecision,
			Text:       e.PayloadString("text"),
			EventID:    e.EventID,
			Supersedes: e.SupersedesTarget(),
		})
	}
	if e.HasTag("session_digest") {
		s.SessionDigests = append(s.SessionDigests, sessionDigestEntry(e))
	}
}

// cmdFailSignal reports a cmd as a fail signal only when it actually ran:
// phantom ingested commands carry duration_ms == 0 and are excluded.
func cmdFailSignal(e *types.Event) (SignalEntry, bool) {
	exitCode := payloadInt(e.Payload, "exit_code")
	durationMS := payloadInt(e.Payload, "duration_ms")
	if exitCode == 0 || durationMS <= 0 {
		return SignalEntry{}, false
	}
	argv := strings.Join(e.PayloadStrings("argv"), " ")
	return SignalEntry{
		TS:      e.TS,
		Kind:    SignalCmdFail,
		Text:    fmt.Sprintf("%s (exit=%d)", argv, exitCode),
		EventID: e.EventID,
	}, true
}

func sessionDigestEntry(e *types.Event) SessionDigestEntry {
	entry := SessionDigestEntry{
		TS:        e.TS,
		EventID:   e.EventID,
		SessionID: e.PayloadString("session_id"),
		Outcome:   "completed",
	}
	stats, ok := e.Payload["session_stats"].(map[string]any)
	if !ok {
		return entry
	}
	entry.ToolCalls = uint64(anyInt(stats["tool_calls"]))
	entry.ToolFailures = uint64(anyInt(stats["tool_failures"]))
	entry.UserPrompts = uint64(anyInt(stats["user_prompts"]))
	entry.DurationMinutes = uint64(anyInt(stats["duration_minutes"]))
	entry.FilesModified = anyStrings(stats["files_modified"])
	entry.FailedCommands = anyStrings(stats["failed_commands"])
	entry.CommitsMade = anyStrings(stats["commits_made"])
	entry.Notes = anyStrings(stats["notes"])
	if outcome, ok := stats["outcome"].(string); ok && outcome != "" {
		entry.Outcome = outcome
	}
	if tasks, ok := stats["tasks_snapshot"].([]any); ok {
		for _, t := range tasks {
			obj, ok := t.(map[string]any)
			if !ok {
				continue
			}
			subject, _ := obj["subject"].(string)
			status, _ := obj["status"].(string)
			if subject == "" || status == "" {
				continue
			}
			entry.TasksSnapshot = append(entry.TasksSnapshot, TaskSnapshotEntry{Subject: subject, Status: status})
		}
	}
	return entry
}

func payloadInt(payload map[string]any, key string) int64 {
	return anyInt(payload[key])
}

// anyInt extracts an integer from the union of types JSON decoding and
// event construction produce.
func anyInt(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int:
		return int64(x)
	case int64:
		return x
	case uint64:
		return int64(x)
	case json.Number:
		n, _ := x.Int64()
		return n
	}
	return 0
}

func anyStrings(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

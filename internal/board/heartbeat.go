// Package board implements the file-mediated multi-agent coordination
// board: per-session heartbeats, an append-only coordination log of claims,
// bindings, and requests, and the derived board snapshot.
//
// The board is eventually consistent by design: writes are per-file atomic
// replaces or O_APPEND line writes with no global lock, and readers
// reconcile by recomputing the projection. A crash can leave a torn
// trailing line in the log; readers skip lines that fail to parse, so a
// torn write never poisons subsequent reads.
package board

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fagemx/edda/internal/config"
	"github.com/fagemx/edda/internal/store"
)

// SessionState is the heartbeat file written by each active session on
// every hook or command invocation. Other sessions read it; only the owner
// writes it.
type SessionState struct {
	LastHeartbeat      string   `json:"last_heartbeat"`
	Label              string   `json:"label,omitempty"`
	ClaimedPaths       []string `json:"claimed_paths,omitempty"`
	Branch             string   `json:"branch,omitempty"`
	FocusFiles         []string `json:"focus_files,omitempty"`
	TaskSubjects       []string `json:"task_subjects,omitempty"`
	FilesModifiedCount int      `json:"files_modified_count,omitempty"`
	RecentCommits      []string `json:"recent_commits,omitempty"`
}

func sessionPath(projectID, sessionID string) string {
	return filepath.Join(store.StateDir(projectID), fmt.Sprintf("session.%s.json", sessionID))
}

// WriteHeartbeat stamps and persists the session state atomically.
func WriteHeartbeat(projectID, sessionID string, state SessionState) error {
	state.LastHeartbeat = nowRFC3339()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}
	return store.WriteAtomic(sessionPath(projectID, sessionID), data)
}

// ReadSession loads another session's state file. Unreadable or malformed
// files yield (nil, nil): peer state is advisory.
func ReadSession(projectID, sessionID string) (*SessionState, error) {
	data, err := os.ReadFile(sessionPath(projectID, sessionID)) // #nosec G304 - controlled path from state layout
	if err != nil {
		return nil, nil
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil
	}
	return &state, nil
}

// SessionInfo pairs a session id with its state.
type SessionInfo struct {
	SessionID string
	State     SessionState
}

// HeartbeatAge returns the age of a session's heartbeat; the maximum
// duration when the heartbeat is missing or unparsable.
func (s *SessionState) HeartbeatAge(now time.Time) time.Duration {
	ts, err := time.Parse(time.RFC3339, s.LastHeartbeat)
	if err != nil {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(ts)
}

// IsActive reports whether the heartbeat is within the stale threshold.
func (s *SessionState) IsActive(now time.Time, staleSecs int64) bool {
	return s.HeartbeatAge(now) <= time.Duration(staleSecs)*time.Second
}

// ListSessions returns every session with a heartbeat file, active or not.
func ListSessions(projectID string) ([]SessionInfo, error) {
	stateDir := store.StateDir(projectID)
	entries, err := os.ReadDir(stateDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing session state: %w", err)
	}

	var sessions []SessionInfo
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "session.") || !strings.HasSuffix(name, ".json") {
			continue
		}
		sessionID := strings.TrimSuffix(strings.TrimPrefix(name, "session."), ".json")
		state, err := ReadSession(projectID, sessionID)
		if err != nil || state == nil {
			continue
		}
		sessions = append(sessions, SessionInfo{SessionID: sessionID, State: *state})
	}
	return sessions, nil
}

// ActiveSessions returns the sessions whose heartbeat age is within the
// configured stale threshold.
func ActiveSessions(projectID string) ([]SessionInfo, error) {
	all, err := ListSessions(projectID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	staleSecs := config.StaleSecs()
	var active []SessionInfo
	for _, s := range all {
		if s.State.IsActive(now, staleSecs) {
			active = append(active, s)
		}
	}
	return active, nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

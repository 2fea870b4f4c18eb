// Package phase detects what lifecycle stage an agent is in from git
// state, filesystem artifacts, and task heuristics, and reports debounced
// transitions.
package phase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fagemx/edda/internal/board"
	"github.com/fagemx/edda/internal/config"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/types"
)

// DetectorConfig tunes transition debounce. Defaults come from user config
// (phase.confidence_threshold, phase.min_interval_secs).
type DetectorConfig struct {
	ConfidenceThreshold float64
	MinIntervalSecs     int64
}

// DefaultDetectorConfig returns the configured (or hand-tuned default)
// debounce parameters.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ConfidenceThreshold: config.PhaseConfidenceThreshold(),
		MinIntervalSecs:     config.PhaseMinIntervalSecs(),
	}
}

// DetectInput bundles the detection signals for one session.
type DetectInput struct {
	SessionID   string
	Label       string
	Branch      string
	ActiveTasks []string
	Cwd         string
	// DeepDiveDir overrides the default deep-dive artifact directory
	// (/tmp/deep-dive); empty means the default.
	DeepDiveDir string
}

// Detect derives the current phase with a confidence in [0,1] and the
// signals explaining it. Deterministic for identical inputs.
func Detect(in DetectInput) types.AgentPhaseState {
	state := types.AgentPhaseState{
		Phase:      types.PhaseTriage,
		SessionID:  in.SessionID,
		Label:      in.Label,
		Branch:     in.Branch,
		Confidence: 0.3,
		DetectedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if issue, ok := issueFromBranch(in.Branch); ok {
		state.Issue = issue
	}

	// 1. Branch-based detection.
	if isFeatureBranch(in.Branch) {
		state.Phase = types.PhaseImplement
		state.Confidence = 0.5
		state.Signals = append(state.Signals, fmt.Sprintf("branch %s is a feature branch", in.Branch))
	}

	// 2. Artifact-based detection (overrides the branch when more specific).
	artifacts := scanArtifacts(in.Cwd, deepDiveDir(in.DeepDiveDir))
	switch {
	case artifacts.hasPlan:
		if state.Phase == types.PhaseImplement || state.Phase == types.PhaseTriage {
			state.Phase = types.PhaseImplement
			state.Confidence = maxFloat(state.Confidence, 0.7)
			state.Signals = append(state.Signals, "plan.md artifact found")
		}
	case artifacts.hasResearch:
		state.Phase = types.PhasePlan
		state.Confidence = maxFloat(state.Confidence, 0.7)
		state.Signals = append(state.Signals, "research.md found, no plan.md")
	case state.Issue != 0:
		if !isFeatureBranch(in.Branch) {
			state.Phase = types.PhaseResearch
			state.Confidence = maxFloat(state.Confidence, 0.6)
			state.Signals = append(state.Signals, "issue context exists, no research artifacts")
		}
	}

	// 3. Task-name heuristics: aligned tasks boost confidence; otherwise
	// they override only low-confidence detections.
	if taskPhase, ok := phaseFromTasks(in.ActiveTasks); ok {
		if taskPhase == state.Phase {
			state.Confidence = minFloat(state.Confidence+0.15, 1.0)
			state.Signals = append(state.Signals, "task names align with detected phase")
		} else if state.Confidence < 0.6 {
			state.Phase = taskPhase
			state.Confidence = 0.55
			state.Signals = append(state.Signals, "phase inferred from task names")
		}
	}

	// 4. PR detection forces review.
	if pr, ok := prFromTasks(in.ActiveTasks); ok {
		state.PR = pr
		state.Phase = types.PhaseReview
		state.Confidence = maxFloat(state.Confidence, 0.8)
		state.Signals = append(state.Signals, fmt.Sprintf("PR #%d detected in tasks", pr))
	}

	if len(state.Signals) == 0 {
		state.Signals = append(state.Signals, "no signals, defaulting to triage")
	}
	return state
}

// DetectTransition compares current vs previous state under the debounce
// rules: a transition is reported only when the phase changed, confidence
// meets the threshold, and the minimum interval elapsed.
func DetectTransition(current types.AgentPhaseState, previous *types.AgentPhaseState, cfg DetectorConfig) *types.AgentPhaseTransition {
	if previous == nil {
		return nil
	}
	if current.Phase == previous.Phase {
		return nil
	}
	if current.Confidence < cfg.ConfidenceThreshold {
		return nil
	}
	currTS, errCurr := time.Parse(time.RFC3339, current.DetectedAt)
	prevTS, errPrev := time.Parse(time.RFC3339, previous.DetectedAt)
	if errCurr == nil && errPrev == nil {
		if currTS.Sub(prevTS) < time.Duration(cfg.MinIntervalSecs)*time.Second {
			return nil
		}
	}
	return &types.AgentPhaseTransition{
		From:  previous.Phase,
		To:    current.Phase,
		State: current,
	}
}

// ── State persistence ──

func statePath(projectID, sessionID string) string {
	return filepath.Join(store.StateDir(projectID), fmt.Sprintf("phase.%s.json", sessionID))
}

// ReadState loads the last persisted phase state for a session, or nil.
func ReadState(projectID, sessionID string) *types.AgentPhaseState {
	data, err := os.ReadFile(statePath(projectID, sessionID)) // #nosec G304 - controlled path from state layout
	if err != nil {
		return nil
	}
	var state types.AgentPhaseState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	return &state
}

// WriteState persists phase state atomically.
func WriteState(projectID string, state types.AgentPhaseState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling phase state: %w", err)
	}
	return store.WriteAtomic(statePath(projectID, state.SessionID), data)
}

// BuildMap aggregates every persisted phase state into a phase map,
// splitting active from stale by heartbeat age.
func BuildMap(projectID string) types.AgentPhaseMap {
	stateDir := store.StateDir(projectID)
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		return types.NewAgentPhaseMap(nil, nil)
	}

	now := time.Now()
	staleSecs := config.StaleSecs()
	var active, stale []types.AgentPhaseState
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "phase.") || !strings.HasSuffix(name, ".json") {
			continue
		}
		sessionID := strings.TrimSuffix(strings.TrimPrefix(name, "phase."), ".json")
		state := ReadState(projectID, sessionID)
		if state == nil {
			continue
		}
		session, err := board.ReadSession(projectID, sessionID)
		if err == nil && session != nil && session.IsActive(now, staleSecs) {
			active = append(active, *state)
		} else {
			stale = append(stale, *state)
		}
	}
	return types.NewAgentPhaseMap(active, stale)
}

// ── Internal helpers ──

type artifactScan struct {
	hasResearch bool
	hasPlan     bool
}

func deepDiveDir(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(os.TempDir(), "deep-dive")
}

func scanArtifacts(cwd, deepDive string) artifactScan {
	var scan artifactScan
	if entries, err := os.ReadDir(deepDive); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(deepDive, entry.Name())
			if fileExists(filepath.Join(dir, "research.md")) {
				scan.hasResearch = true
			}
			if fileExists(filepath.Join(dir, "plan.md")) {
				scan.hasPlan = true
			}
		}
	}
	if cwd != "" {
		if fileExists(filepath.Join(cwd, "research.md")) {
			scan.hasResearch = true
		}
		if fileExists(filepath.Join(cwd, "plan.md")) {
			scan.hasPlan = true
		}
	}
	return scan
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isFeatureBranch(branch string) bool {
	return strings.HasPrefix(branch, "feat/") ||
		strings.HasPrefix(branch, "fix/") ||
		strings.HasPrefix(branch, "issue-")
}

// issueFromBranch extracts an issue number from names like feat/auth-45,
// fix/bug-123, or issue-789.
func issueFromBranch(branch string) (uint64, bool) {
	if branch == "" {
		return 0, false
	}
	parts := strings.Split(branch, "-")
	last := parts[len(parts)-1]
	n, err := strconv.ParseUint(last, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func phaseFromTasks(tasks []string) (types.AgentPhase, bool) {
	joined := strings.ToLower(strings.Join(tasks, " "))
	switch {
	case containsAny(joined, "review", "pr-review", "pr review"):
		return types.PhaseReview, true
	case containsAny(joined, "implement", "issue-action", "coding", "fix ", "add "):
		return types.PhaseImplement, true
	case containsAny(joined, "plan", "deep-plan", "design"):
		return types.PhasePlan, true
	case containsAny(joined, "research", "deep-research", "investigate"):
		return types.PhaseResearch, true
	case containsAny(joined, "triage", "issue-scan", "scan"):
		return types.PhaseTriage, true
	}
	return "", false
}

func prFromTasks(tasks []string) (uint64, bool) {
	for _, task := range tasks {
		lower := strings.ToLower(task)
		if !containsAny(lower, "pr #", "pr-review", "pr review") {
			continue
		}
		for _, word := range strings.Fields(task) {
			if num, ok := strings.CutPrefix(word, "#"); ok {
				if n, err := strconv.ParseUint(num, 10, 64); err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

package phase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fagemx/edda/internal/board"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/types"
)

func emptyDeepDive(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "deep-dive")
}

func TestDetectDefaultIsTriage(t *testing.T) {
	state := Detect(DetectInput{
		SessionID:   "s1",
		Cwd:         t.TempDir(),
		DeepDiveDir: emptyDeepDive(t),
	})
	assert.Equal(t, types.PhaseTriage, state.Phase)
	assert.LessOrEqual(t, state.Confidence, 0.5)
	assert.NotEmpty(t, state.Signals)
}

func TestDetectFeatureBranchImpliesImplement(t *testing.T) {
	state := Detect(DetectInput{
		SessionID:   "s1",
		Branch:      "feat/auth-45",
		Cwd:         t.TempDir(),
		DeepDiveDir: emptyDeepDive(t),
	})
	assert.Equal(t, types.PhaseImplement, state.Phase)
	assert.GreaterOrEqual(t, state.Confidence, 0.5)
	assert.Equal(t, uint64(45), state.Issue)
}

func TestDetectPlanArtifactRaisesConfidence(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "plan.md"), []byte("# plan"), 0o644))

	state := Detect(DetectInput{
		SessionID:   "s1",
		Branch:      "feat/auth-45",
		Cwd:         cwd,
		DeepDiveDir: emptyDeepDive(t),
	})
	assert.Equal(t, types.PhaseImplement, state.Phase)
	assert.GreaterOrEqual(t, state.Confidence, 0.7)
	assert.Contains(t, state.Signals, "plan.md artifact found")
}

func TestDetectResearchWithoutPlanImpliesPlan(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "research.md"), []byte("# notes"), 0o644))

	state := Detect(DetectInput{
		SessionID:   "s1",
		Cwd:         cwd,
		DeepDiveDir: emptyDeepDive(t),
	})
	assert.Equal(t, types.PhasePlan, state.Phase)
	assert.GreaterOrEqual(t, state.Confidence, 0.7)
}

func TestDetectIssueWithoutArtifactsImpliesResearch(t *testing.T) {
	state := Detect(DetectInput{
		SessionID:   "s1",
		Branch:      "issue-789",
		Cwd:         t.TempDir(),
		DeepDiveDir: emptyDeepDive(t),
	})
	// issue-789 is a feature branch prefix, so implement wins; main with
	// an issue number means research.
	assert.Equal(t, types.PhaseImplement, state.Phase)

	state = Detect(DetectInput{
		SessionID:   "s1",
		Branch:      "main-42",
		Cwd:         t.TempDir(),
		DeepDiveDir: emptyDeepDive(t),
	})
	assert.Equal(t, uint64(42), state.Issue)
	assert.Equal(t, types.PhaseResearch, state.Phase)
}

func TestDetectTasksOverrideLowConfidence(t *testing.T) {
	state := Detect(DetectInput{
		SessionID:   "s1",
		ActiveTasks: []string{"deep-research the migration options"},
		Cwd:         t.TempDir(),
		DeepDiveDir: emptyDeepDive(t),
	})
	assert.Equal(t, types.PhaseResearch, state.Phase)
	assert.InDelta(t, 0.55, state.Confidence, 1e-9)
}

func TestDetectPRForcesReview(t *testing.T) {
	state := Detect(DetectInput{
		SessionID:   "s1",
		Branch:      "feat/auth-45",
		ActiveTasks: []string{"Review PR #53"},
		Cwd:         t.TempDir(),
		DeepDiveDir: emptyDeepDive(t),
	})
	assert.Equal(t, types.PhaseReview, state.Phase)
	assert.GreaterOrEqual(t, state.Confidence, 0.8)
	assert.Equal(t, uint64(53), state.PR)
}

func TestDetectIdempotentForSameInputs(t *testing.T) {
	in := DetectInput{
		SessionID:   "s1",
		Branch:      "feat/auth-45",
		ActiveTasks: []string{"Implement login"},
		Cwd:         t.TempDir(),
		DeepDiveDir: emptyDeepDive(t),
	}
	a := Detect(in)
	b := Detect(in)
	assert.Equal(t, a.Phase, b.Phase)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Signals, b.Signals)
	assert.NotEmpty(t, a.Signals)
}

func TestIssueFromBranch(t *testing.T) {
	n, ok := issueFromBranch("feat/auth-45")
	require.True(t, ok)
	assert.Equal(t, uint64(45), n)

	n, ok = issueFromBranch("issue-789")
	require.True(t, ok)
	assert.Equal(t, uint64(789), n)

	_, ok = issueFromBranch("main")
	assert.False(t, ok)
	_, ok = issueFromBranch("feat/no-number-here")
	assert.False(t, ok)
}

func TestPhaseFromTasks(t *testing.T) {
	cases := []struct {
		task string
		want types.AgentPhase
	}{
		{"Execute research phase", types.PhaseResearch},
		{"Implement auth feature", types.PhaseImplement},
		{"Run pr-review", types.PhaseReview},
		{"deep-plan the rollout", types.PhasePlan},
		{"triage new issues", types.PhaseTriage},
	}
	for _, tc := range cases {
		got, ok := phaseFromTasks([]string{tc.task})
		require.True(t, ok, tc.task)
		assert.Equal(t, tc.want, got, tc.task)
	}

	_, ok := phaseFromTasks(nil)
	assert.False(t, ok)
}

func TestDetectTransitionRules(t *testing.T) {
	cfg := DetectorConfig{ConfidenceThreshold: 0.6, MinIntervalSecs: 30}

	prev := types.AgentPhaseState{
		Phase:      types.PhaseResearch,
		SessionID:  "s1",
		Confidence: 0.8,
		DetectedAt: "2026-02-27T10:00:00Z",
	}

	// Same phase: no transition.
	same := prev
	same.DetectedAt = "2026-02-27T10:01:00Z"
	assert.Nil(t, DetectTransition(same, &prev, cfg))

	// Low confidence: no transition.
	low := prev
	low.Phase = types.PhasePlan
	low.Confidence = 0.4
	low.DetectedAt = "2026-02-27T10:01:00Z"
	assert.Nil(t, DetectTransition(low, &prev, cfg))

	// Too soon: no transition.
	soon := prev
	soon.Phase = types.PhasePlan
	soon.DetectedAt = "2026-02-27T10:00:10Z"
	assert.Nil(t, DetectTransition(soon, &prev, cfg))

	// No previous: no transition.
	assert.Nil(t, DetectTransition(same, nil, cfg))

	// Valid transition.
	valid := prev
	valid.Phase = types.PhaseImplement
	valid.Confidence = 0.85
	valid.DetectedAt = "2026-02-27T10:05:00Z"
	tr := DetectTransition(valid, &prev, cfg)
	require.NotNil(t, tr)
	assert.Equal(t, types.PhaseResearch, tr.From)
	assert.Equal(t, types.PhaseImplement, tr.To)
}

func TestStatePersistenceRoundTrip(t *testing.T) {
	t.Setenv("EDDA_STATE_DIR", t.TempDir())
	projectID := "phase-test-project"
	_, err := store.EnsureDirs(projectID)
	require.NoError(t, err)

	state := types.AgentPhaseState{
		Phase:      types.PhaseImplement,
		SessionID:  "sess-test",
		Label:      "worker",
		Issue:      45,
		Confidence: 0.85,
		DetectedAt: "2026-02-27T10:00:00Z",
		Signals:    []string{"test signal"},
	}
	require.NoError(t, WriteState(projectID, state))

	loaded := ReadState(projectID, "sess-test")
	require.NotNil(t, loaded)
	assert.Equal(t, types.PhaseImplement, loaded.Phase)
	assert.Equal(t, uint64(45), loaded.Issue)

	assert.Nil(t, ReadState(projectID, "missing"))
}

func TestBuildMapSplitsActiveAndStale(t *testing.T) {
	t.Setenv("EDDA_STATE_DIR", t.TempDir())
	projectID := "phase-map-project"
	_, err := store.EnsureDirs(projectID)
	require.NoError(t, err)

	// Active session: fresh heartbeat + phase state.
	require.NoError(t, board.WriteHeartbeat(projectID, "s1", board.SessionState{Label: "w1"}))
	require.NoError(t, WriteState(projectID, types.AgentPhaseState{
		Phase: types.PhaseImplement, SessionID: "s1", Label: "w1",
		Confidence: 0.8, DetectedAt: "2026-02-27T10:00:00Z",
	}))

	// Stale session: phase state with no heartbeat at all.
	require.NoError(t, WriteState(projectID, types.AgentPhaseState{
		Phase: types.PhaseResearch, SessionID: "s2",
		Confidence: 0.6, DetectedAt: "2026-02-27T09:00:00Z",
	}))

	m := BuildMap(projectID)
	require.Len(t, m.Agents, 1)
	assert.Equal(t, "s1", m.Agents[0].SessionID)
	require.Len(t, m.Stale, 1)
	assert.Equal(t, "s2", m.Stale[0].SessionID)
	assert.Contains(t, m.Summary, "1 active")
}

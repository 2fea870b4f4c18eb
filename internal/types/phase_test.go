package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePhaseState() AgentPhaseState {
	return AgentPhaseState{
		Phase:      PhaseImplement,
		SessionID:  "sess-abc",
		Label:      "feature-worker",
		Issue:      45,
		Branch:     "feat/auth-45",
		Confidence: 0.85,
		DetectedAt: "2026-02-27T10:00:00Z",
		Signals:    []string{"branch feat/auth-45 created"},
	}
}

func TestParseAgentPhase(t *testing.T) {
	for _, p := range []AgentPhase{PhaseTriage, PhaseResearch, PhasePlan, PhaseImplement, PhaseReview} {
		parsed, err := ParseAgentPhase(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParseAgentPhase("unknown")
	assert.Error(t, err)
}

func TestPhaseStateSerdeRoundtrip(t *testing.T) {
	raw, err := json.Marshal(samplePhaseState())
	require.NoError(t, err)

	var back AgentPhaseState
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, PhaseImplement, back.Phase)
	assert.Equal(t, "feature-worker", back.Label)
	assert.Equal(t, uint64(45), back.Issue)
}

func TestPhaseMapSummary(t *testing.T) {
	empty := NewAgentPhaseMap(nil, nil)
	assert.Equal(t, "no active agents", empty.Summary)

	s1 := samplePhaseState()
	s2 := samplePhaseState()
	s2.SessionID = "sess-def"
	s2.Label = ""
	s2.Phase = PhaseReview
	s2.Issue = 0
	s2.PR = 53

	m := NewAgentPhaseMap([]AgentPhaseState{s1, s2}, nil)
	assert.Contains(t, m.Summary, "2 active")
	assert.Contains(t, m.Summary, "feature-worker implement #45")
	assert.Contains(t, m.Summary, "sess-def review PR #53")
}

func TestPhaseSuggestion(t *testing.T) {
	assert.Equal(t, "/deep-research 45", PhaseSuggestion(PhaseResearch, 45, 0))
	assert.Equal(t, "/pr-review 53", PhaseSuggestion(PhaseReview, 0, 53))
	assert.Equal(t, "/issue-action", PhaseSuggestion(PhaseImplement, 0, 0))
}

func TestFormatPhaseNudge(t *testing.T) {
	nudge := FormatPhaseNudge(samplePhaseState())
	assert.Contains(t, nudge, "-> AgentPhase: implement (#45)")
	assert.Contains(t, nudge, "/issue-action")
}

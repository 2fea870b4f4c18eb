package types

import (
	"fmt"
	"strings"
)

// AgentPhase is the lifecycle stage of an external agent.
type AgentPhase string

const (
	PhaseTriage    AgentPhase = "triage"
	PhaseResearch  AgentPhase = "research"
	PhasePlan      AgentPhase = "plan"
	PhaseImplement AgentPhase = "implement"
	PhaseReview    AgentPhase = "review"
)

// ParseAgentPhase parses a phase string.
func ParseAgentPhase(s string) (AgentPhase, error) {
	switch AgentPhase(s) {
	case PhaseTriage, PhaseResearch, PhasePlan, PhaseImplement, PhaseReview:
		return AgentPhase(s), nil
	}
	return "", fmt.Errorf("unknown agent phase: %s", s)
}

// AgentPhaseState is a snapshot of a single agent's detected phase.
type AgentPhaseState struct {
	Phase      AgentPhase `json:"phase"`
	SessionID  string     `json:"session_id"`
	Label      string     `json:"label,omitempty"`
	Issue      uint64     `json:"issue,omitempty"`
	PR         uint64     `json:"pr,omitempty"`
	Branch     string     `json:"branch,omitempty"`
	Confidence float64    `json:"confidence"`
	DetectedAt string     `json:"detected_at"`
	Signals    []string   `json:"signals,omitempty"`
}

// AgentPhaseTransition is a reported phase change.
type AgentPhaseTransition struct {
	From  AgentPhase      `json:"from"`
	To    AgentPhase      `json:"to"`
	State AgentPhaseState `json:"state"`
}

// AgentPhaseMap is the aggregated view of all agents' phases.
type AgentPhaseMap struct {
	Agents  []AgentPhaseState `json:"agents"`
	Stale   []AgentPhaseState `json:"stale,omitempty"`
	Summary string            `json:"summary"`
}

// NewAgentPhaseMap builds a phase map with a human-readable summary line.
func NewAgentPhaseMap(agents, stale []AgentPhaseState) AgentPhaseMap {
	return AgentPhaseMap{
		Agents:  agents,
		Stale:   stale,
		Summary: phaseSummary(agents),
	}
}

func phaseSummary(agents []AgentPhaseState) string {
	if len(agents) == 0 {
		return "no active agents"
	}
	parts := make([]string, 0, len(agents))
	for _, a := range agents {
		id := a.Label
		if id == "" {
			id = a.SessionID
		}
		context := ""
		switch {
		case a.PR != 0:
			context = fmt.Sprintf(" PR #%d", a.PR)
		case a.Issue != 0:
			context = fmt.Sprintf(" #%d", a.Issue)
		}
		parts = append(parts, fmt.Sprintf("%s %s%s", id, a.Phase, context))
	}
	return fmt.Sprintf("%d active: %s", len(agents), strings.Join(parts, ", "))
}

// PhaseSuggestion returns the suggested next command for a phase.
func PhaseSuggestion(phase AgentPhase, issue, pr uint64) string {
	switch phase {
	case PhaseTriage:
		return "/issue-scan or /issue-create"
	case PhaseResearch:
		if issue != 0 {
			return fmt.Sprintf("/deep-research %d", issue)
		}
		return "/deep-research"
	case PhasePlan:
		if issue != 0 {
			return fmt.Sprintf("/deep-plan %d", issue)
		}
		return "/deep-plan"
	case PhaseImplement:
		return "/issue-action"
	case PhaseReview:
		if pr != 0 {
			return fmt.Sprintf("/pr-review %d", pr)
		}
		return "/pr-review"
	}
	return ""
}

// FormatPhaseNudge renders a one-line phase nudge for hook injection.
func FormatPhaseNudge(state AgentPhaseState) string {
	context := ""
	switch {
	case state.PR != 0:
		context = fmt.Sprintf(" (PR #%d)", state.PR)
	case state.Issue != 0:
		context = fmt.Sprintf(" (#%d)", state.Issue)
	}
	return fmt.Sprintf("-> AgentPhase: %s%s. Suggested: %s",
		state.Phase, context, PhaseSuggestion(state.Phase, state.Issue, state.PR))
}

package views

import (
	"context"

	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/types"
)

// Per-kind caps for auto-selected evidence.
const (
	autoEvidenceDecisions = 2
	autoEvidenceCmdFails  = 2
	autoEvidenceTodos     = 2
)

// BuildAutoEvidence selects recent decision, failing-command, and open-todo
// events on the branch as candidate commit evidence, newest first per kind,
// deduplicated against manually supplied event ids.
func BuildAutoEvidence(ctx context.Context, led storage.Ledger, branch string, manual []string) ([]types.EvidenceItem, error) {
	snap, err := BuildBranchSnapshot(ctx, led, branch)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, id := range manual {
		seen[id] = true
	}

	var items []types.EvidenceItem
	take := func(kind SignalKind, why string, limit int) {
		count := 0
		// Newest first.
		for i := len(snap.Signals) - 1; i >= 0 && count < limit; i-- {
			s := snap.Signals[i]
			if s.Kind != kind || seen[s.EventID] {
				continue
			}
			seen[s.EventID] = true
			items = append(items, types.EvidenceItem{EventID: s.EventID, Why: why})
			count++
		}
	}

	take(SignalNoteDecision, "recent decision", autoEvidenceDecisions)
	take(SignalCmdFail, "recent failing command", autoEvidenceCmdFails)
	take(SignalNoteTodo, "open todo", autoEvidenceTodos)
	return items, nil
}

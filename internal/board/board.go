package board

import (
	"context"
	"encoding/json"

	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/types"
)

// recentRequestWindow bounds the requests carried in a snapshot.
const recentRequestWindow = 20

// Claim is the latest claim per label.
type Claim struct {
	TS        string
	SessionID string
	Label     string
	Paths     []string
}

// Binding is one broadcast decision.
type Binding struct {
	TS        string
	SessionID string
	Label     string
	Key       string
	Value     string
	Domain    string
}

// Request is one peer-to-peer note.
type Request struct {
	TS        string
	FromLabel string
	ToLabel   string
	Message   string
}

// Snapshot is the derived view of the coordination board.
type Snapshot struct {
	Active   []SessionInfo
	Claims   map[string]Claim     // label -> latest claim
	Bindings map[string][]Binding // domain -> bindings in append order
	Requests []Request            // bounded recent window, oldest first
}

// BuildSnapshot projects the board from heartbeat files and the
// coordination log. Lock-free: readers tolerate concurrent writers.
func BuildSnapshot(projectID string) (*Snapshot, error) {
	active, err := ActiveSessions(projectID)
	if err != nil {
		return nil, err
	}
	entries, err := ReadLog(projectID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Active:   active,
		Claims:   map[string]Claim{},
		Bindings: map[string][]Binding{},
	}
	for _, entry := range entries {
		switch entry.Kind {
		case KindClaim:
			var p ClaimPayload
			if json.Unmarshal(entry.Payload, &p) != nil {
				continue
			}
			label := p.Label
			if label == "" {
				label = entry.Label
			}
			snap.Claims[label] = Claim{
				TS:        entry.TS,
				SessionID: entry.SessionID,
				Label:     label,
				Paths:     p.Paths,
			}
		case KindBinding:
			var p BindingPayload
			if json.Unmarshal(entry.Payload, &p) != nil {
				continue
			}
			domain := types.DomainOf(p.Key)
			snap.Bindings[domain] = append(snap.Bindings[domain], Binding{
				TS:        entry.TS,
				SessionID: entry.SessionID,
				Label:     entry.Label,
				Key:       p.Key,
				Value:     p.Value,
				Domain:    domain,
			})
		case KindRequest:
			var p RequestPayload
			if json.Unmarshal(entry.Payload, &p) != nil {
				continue
			}
			snap.Requests = append(snap.Requests, Request{
				TS:        entry.TS,
				FromLabel: p.FromLabel,
				ToLabel:   p.ToLabel,
				Message:   p.Message,
			})
		}
	}
	if n := len(snap.Requests); n > recentRequestWindow {
		snap.Requests = snap.Requests[n-recentRequestWindow:]
	}
	return snap, nil
}

// Bind records a binding decision: durably in the ledger as a decision
// event, then broadcast on the coordination log for real-time visibility.
// The two writes are not transactional; if the broadcast fails after the
// ledger write, re-running Bind converges (the projection keys on the
// decision key, and the log tolerates duplicates).
func Bind(ctx context.Context, led storage.Ledger, projectID, sessionID, label, key, value, reason string) (*types.Event, error) {
	branch, err := led.HeadBranch(ctx)
	if err != nil {
		return nil, err
	}
	tip, err := led.TipHash(ctx, branch)
	if err != nil {
		return nil, err
	}
	var parent *string
	if tip != "" {
		parent = &tip
	}

	supersedes := ""
	timeline, err := led.DecisionTimeline(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, row := range timeline {
		if row.Branch == branch && row.IsActive {
			supersedes = row.EventID
			break
		}
	}

	e, err := types.NewDecisionEvent(branch, parent, key, value, reason, supersedes)
	if err != nil {
		return nil, err
	}
	if err := led.AppendEvent(ctx, e); err != nil {
		return nil, err
	}
	if err := AppendBinding(projectID, sessionID, label, key, value); err != nil {
		return e, err
	}
	return e, nil
}

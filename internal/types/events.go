package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fagemx/edda/internal/canon"
)

// NewEventID returns a fresh ULID-based event identifier (`evt_<ulid>`,
// lowercased).
func NewEventID() string {
	return "evt_" + strings.ToLower(ulid.Make().String())
}

// NowRFC3339 returns the current UTC time in RFC3339 format.
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Finalize recomputes the event's taxonomy, hash, and digests based on its
// current content. Must be called after any post-construction modification
// of hashed fields.
func Finalize(e *Event) error {
	e.EventFamily, e.EventLevel = ClassifyEventType(e.EventType)

	raw, err := canon.MarshalNoEscape(e)
	if err != nil {
		return fmt.Errorf("serializing event %s: %w", e.EventID, err)
	}
	hash, err := canon.HashEventJSON(raw)
	if err != nil {
		return fmt.Errorf("hashing event %s: %w", e.EventID, err)
	}

	e.Hash = hash
	e.Digests = []Digest{{Alg: "sha256", CanonID: canon.CanonID, Value: hash}}
	return nil
}

// ComputeHash returns the chain hash for the event's current content
// without mutating it.
func ComputeHash(e *Event) (string, error) {
	raw, err := canon.MarshalNoEscape(e)
	if err != nil {
		return "", err
	}
	return canon.HashEventJSON(raw)
}

func newEvent(eventType, branch string, parentHash *string, payload map[string]any) *Event {
	return &Event{
		EventID:       NewEventID(),
		TS:            NowRFC3339(),
		EventType:     eventType,
		Branch:        branch,
		ParentHash:    parentHash,
		Payload:       payload,
		SchemaVersion: SchemaVersion,
	}
}

// NewNoteEvent creates a note event.
func NewNoteEvent(branch string, parentHash *string, role, text string, tags []string) (*Event, error) {
	if tags == nil {
		tags = []string{}
	}
	e := newEvent(TypeNote, branch, parentHash, map[string]any{
		"role": role,
		"text": text,
		"tags": tags,
	})
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// NewDecisionEvent creates a decision-carrying note event. When supersedes
// is non-empty, a supersedes provenance relation targets that event id.
func NewDecisionEvent(branch string, parentHash *string, key, value, reason, supersedes string) (*Event, error) {
	text := key + "=" + value
	if reason != "" {
		text = fmt.Sprintf("%s=%s (%s)", key, value, reason)
	}
	e := newEvent(TypeNote, branch, parentHash, map[string]any{
		"role": "system",
		"text": text,
		"tags": []string{"decision"},
		"decision": map[string]any{
			"key":    key,
			"value":  value,
			"reason": reason,
		},
	})
	if supersedes != "" {
		e.Refs.Provenance = append(e.Refs.Provenance, Provenance{
			Target: supersedes,
			Rel:    RelSupersedes,
		})
	}
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// CmdEventParams are the inputs for a cmd event.
type CmdEventParams struct {
	Branch     string
	ParentHash *string
	Argv       []string
	Cwd        string
	ExitCode   int
	DurationMS uint64
	StdoutBlob string
	StderrBlob string
}

// NewCmdEvent creates a cmd event. Non-empty stdout/stderr blob refs are
// recorded in refs.blobs.
func NewCmdEvent(p CmdEventParams) (*Event, error) {
	if p.Argv == nil {
		p.Argv = []string{}
	}
	e := newEvent(TypeCmd, p.Branch, p.ParentHash, map[string]any{
		"argv":        p.Argv,
		"cwd":         p.Cwd,
		"exit_code":   p.ExitCode,
		"duration_ms": p.DurationMS,
		"stdout_blob": p.StdoutBlob,
		"stderr_blob": p.StderrBlob,
	})
	if p.StdoutBlob != "" {
		e.Refs.Blobs = append(e.Refs.Blobs, p.StdoutBlob)
	}
	if p.StderrBlob != "" {
		e.Refs.Blobs = append(e.Refs.Blobs, p.StderrBlob)
	}
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// EvidenceItem is a structured commit evidence entry: exactly one of
// EventID or Blob is set.
type EvidenceItem struct {
	EventID string `json:"event_id,omitempty"`
	Blob    string `json:"blob,omitempty"`
	Why     string `json:"why,omitempty"`
}

// CommitEventParams are the inputs for a commit event.
type CommitEventParams struct {
	Branch       string
	ParentHash   *string
	Title        string
	Purpose      string
	PrevSummary  string
	Contribution string
	Evidence     []EvidenceItem
	Labels       []string
}

// NewCommitEvent creates a commit event. A commit with no evidence and no
// explicit "claim" label gets "claim" auto-appended. Evidence event ids are
// mirrored into refs.events.
func NewCommitEvent(p CommitEventParams) (*Event, error) {
	labels := append([]string{}, p.Labels...)
	if len(p.Evidence) == 0 && !containsString(labels, "claim") {
		labels = append(labels, "claim")
	}

	evidence := make([]any, 0, len(p.Evidence))
	var eventRefs []string
	for _, item := range p.Evidence {
		m := map[string]any{}
		if item.EventID != "" {
			m["event_id"] = item.EventID
			eventRefs = append(eventRefs, item.EventID)
		}
		if item.Blob != "" {
			m["blob"] = item.Blob
		}
		if item.Why != "" {
			m["why"] = item.Why
		}
		evidence = append(evidence, m)
	}

	e := newEvent(TypeCommit, p.Branch, p.ParentHash, map[string]any{
		"title":        p.Title,
		"purpose":      p.Purpose,
		"prev_summary": p.PrevSummary,
		"contribution": p.Contribution,
		"evidence":     evidence,
		"labels":       labels,
	})
	e.Refs.Events = eventRefs
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// NewBranchCreateEvent creates a branch_create event.
func NewBranchCreateEvent(branch string, parentHash *string, name, purpose, fromBranch, fromEventID string) (*Event, error) {
	e := newEvent(TypeBranchCreate, branch, parentHash, map[string]any{
		"name":          name,
		"purpose":       purpose,
		"from_branch":   fromBranch,
		"from_event_id": fromEventID,
	})
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// NewBranchSwitchEvent creates a branch_switch event.
func NewBranchSwitchEvent(branch string, parentHash *string, from, to string) (*Event, error) {
	e := newEvent(TypeBranchSwitch, branch, parentHash, map[string]any{
		"from": from,
		"to":   to,
	})
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// NewMergeEvent creates a merge event.
func NewMergeEvent(branch string, parentHash *string, src, dst, reason string, adoptedCommits []string) (*Event, error) {
	if adoptedCommits == nil {
		adoptedCommits = []string{}
	}
	e := newEvent(TypeMerge, branch, parentHash, map[string]any{
		"src":             src,
		"dst":             dst,
		"reason":          reason,
		"adopted_commits": adoptedCommits,
	})
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// NewRebuildEvent creates a rebuild event.
func NewRebuildEvent(branch string, parentHash *string, scope, targetBranch, reason string) (*Event, error) {
	e := newEvent(TypeRebuild, branch, parentHash, map[string]any{
		"scope":  scope,
		"branch": targetBranch,
		"reason": reason,
	})
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// ApprovalEventParams are the inputs for an approval event.
type ApprovalEventParams struct {
	Branch      string
	ParentHash  *string
	DraftID     string
	DraftSHA256 string
	Decision    string
	Actor       string
	Note        string
	StageID     string
	Role        string
}

// NewApprovalEvent creates an approval event.
func NewApprovalEvent(p ApprovalEventParams) (*Event, error) {
	e := newEvent(TypeApproval, p.Branch, p.ParentHash, map[string]any{
		"draft_id":     p.DraftID,
		"draft_sha256": p.DraftSHA256,
		"decision":     p.Decision,
		"actor":        p.Actor,
		"note":         p.Note,
		"stage_id":     p.StageID,
		"role":         p.Role,
	})
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// ApprovalRequestParams are the inputs for an approval_request event.
type ApprovalRequestParams struct {
	Branch      string
	ParentHash  *string
	DraftID     string
	DraftSHA256 string
	RouteRuleID string
	StageID     string
	Role        string
	Assignees   []string
	Reason      string
}

// NewApprovalRequestEvent creates an approval_request event.
func NewApprovalRequestEvent(p ApprovalRequestParams) (*Event, error) {
	if p.Assignees == nil {
		p.Assignees = []string{}
	}
	e := newEvent(TypeApprovalRequest, p.Branch, p.ParentHash, map[string]any{
		"draft_id":      p.DraftID,
		"draft_sha256":  p.DraftSHA256,
		"route_rule_id": p.RouteRuleID,
		"stage_id":      p.StageID,
		"role":          p.Role,
		"assignees":     p.Assignees,
		"reason":        p.Reason,
	})
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

// NewReviewBundleEvent creates a review_bundle event pointing at the
// reviewed events with a reviews provenance relation.
func NewReviewBundleEvent(branch string, parentHash *string, title, summary string, eventIDs, blobRefs []string) (*Event, error) {
	if eventIDs == nil {
		eventIDs = []string{}
	}
	if blobRefs == nil {
		blobRefs = []string{}
	}
	e := newEvent(TypeReviewBundle, branch, parentHash, map[string]any{
		"title":     title,
		"summary":   summary,
		"event_ids": eventIDs,
		"blob_refs": blobRefs,
	})
	e.Refs.Events = append(e.Refs.Events, eventIDs...)
	e.Refs.Blobs = append(e.Refs.Blobs, blobRefs...)
	for _, id := range eventIDs {
		e.Refs.Provenance = append(e.Refs.Provenance, Provenance{Target: id, Rel: RelReviews})
	}
	if err := Finalize(e); err != nil {
		return nil, err
	}
	return e, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

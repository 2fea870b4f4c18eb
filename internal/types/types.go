// Package types defines the event model shared by the ledger backends,
// the view derivation layer, and the coordination board.
package types

import "strings"

// SchemaVersion is the current event record version. Legacy records decode
// with version 0 and no digests.
const SchemaVersion = 1

// Event types recorded in the ledger.
const (
	TypeNote            = "note"
	TypeCmd             = "cmd"
	TypeCommit          = "commit"
	TypeMerge           = "merge"
	TypeBranchCreate    = "branch_create"
	TypeBranchSwitch    = "branch_switch"
	TypeRebuild         = "rebuild"
	TypeApproval        = "approval"
	TypeApprovalRequest = "approval_request"
	TypeReviewBundle    = "review_bundle"
)

// Provenance relations (closed vocabulary).
const (
	RelBasedOn    = "based_on"
	RelSupersedes = "supersedes"
	RelContinues  = "continues"
	RelReviews    = "reviews"
)

// Provenance is a typed reference from one event to another.
type Provenance struct {
	Target string `json:"target"`
	Rel    string `json:"rel"`
	Note   string `json:"note,omitempty"`
}

// Refs carries an event's named reference bundles. Events point at blobs
// and other events by identifier only; the provenance graph is a DAG by
// construction since targets must pre-exist in append order.
type Refs struct {
	Blobs      []string     `json:"blobs,omitempty"`
	Events     []string     `json:"events,omitempty"`
	Provenance []Provenance `json:"provenance,omitempty"`
}

// Digest is a named hash-with-canonicalization pair attached to an event.
type Digest struct {
	Alg     string `json:"alg"`
	CanonID string `json:"canon_id"`
	Value   string `json:"value"`
}

// Event is the atomic unit of the append-only ledger.
type Event struct {
	EventID       string         `json:"event_id"`
	TS            string         `json:"ts"`
	EventType     string         `json:"type"`
	Branch        string         `json:"branch"`
	ParentHash    *string        `json:"parent_hash"`
	Hash          string         `json:"hash"`
	Payload       map[string]any `json:"payload"`
	Refs          Refs           `json:"refs"`
	SchemaVersion int            `json:"schema_version"`
	Digests       []Digest       `json:"digests,omitempty"`
	EventFamily   string         `json:"event_family,omitempty"`
	EventLevel    string         `json:"event_level,omitempty"`
}

// ClassifyEventType returns the taxonomy tags (family, level) for an event
// type, or empty strings for unknown types. Taxonomy is a pure function of
// the type and is excluded from hash input.
func ClassifyEventType(eventType string) (family, level string) {
	switch eventType {
	case TypeNote:
		return "signal", "info"
	case TypeCmd:
		return "signal", "trace"
	case TypeCommit, TypeMerge:
		return "milestone", "milestone"
	case TypeBranchCreate, TypeBranchSwitch, TypeRebuild:
		return "admin", "trace"
	case TypeApproval, TypeApprovalRequest, TypeReviewBundle:
		return "governance", "governance"
	}
	return "", ""
}

// PayloadString returns payload[key] as a string, or "" when absent or not
// a string.
func (e *Event) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// PayloadStrings returns payload[key] as a string slice, skipping non-string
// elements.
func (e *Event) PayloadStrings(key string) []string {
	// Constructors store []string; decoded events carry []any.
	if ss, ok := e.Payload[key].([]string); ok {
		return append([]string{}, ss...)
	}
	arr, ok := e.Payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// HasTag reports whether a note event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.PayloadStrings("tags") {
		if t == tag {
			return true
		}
	}
	return false
}

// SupersedesTarget returns the target of the event's supersedes provenance
// relation, or "" when the event supersedes nothing.
func (e *Event) SupersedesTarget() string {
	for _, p := range e.Refs.Provenance {
		if p.Rel == RelSupersedes {
			return p.Target
		}
	}
	return ""
}

// DomainOf returns the decision domain for a key: the prefix before the
// first dot, or the key itself when it has no dot.
func DomainOf(key string) string {
	if i := strings.IndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return key
}

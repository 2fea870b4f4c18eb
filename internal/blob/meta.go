package blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Class is the blob classification driving GC priority.
type Class string

const (
	// ClassArtifact marks outputs, design docs, patches — never auto-removed.
	ClassArtifact Class = "artifact"
	// ClassDecisionEvidence marks decision dependencies — removable past keep_days.
	ClassDecisionEvidence Class = "decision_evidence"
	// ClassTraceNoise marks stdout/stderr and similar noise — removed first.
	ClassTraceNoise Class = "trace_noise"
)

// ParseClass validates a class string.
func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case ClassArtifact, ClassDecisionEvidence, ClassTraceNoise:
		return Class(s), nil
	}
	return "", fmt.Errorf("invalid blob class: %s. Expected: artifact, decision_evidence, trace_noise", s)
}

// GCPriority orders classes for the reaper: lower is removed first.
// Artifacts are never auto-removed.
func (c Class) GCPriority() int {
	switch c {
	case ClassTraceNoise:
		return 0
	case ClassDecisionEvidence:
		return 1
	default:
		return 2
	}
}

// ClassChange records one reclassification for the audit trail.
type ClassChange struct {
	From Class  `json:"from"`
	To   Class  `json:"to"`
	By   string `json:"by"`
	At   string `json:"at"`
}

// MetaEntry is the out-of-chain metadata for one blob.
type MetaEntry struct {
	Class        Class         `json:"class"`
	Pinned       bool          `json:"pinned"`
	ClassifiedAt string        `json:"classified_at,omitempty"`
	ClassifiedBy string        `json:"classified_by,omitempty"`
	ClassHistory []ClassChange `json:"class_history,omitempty"`
}

// Meta maps blob hex hash to metadata.
type Meta map[string]*MetaEntry

// Get returns the entry for a hash, defaulting to unpinned trace_noise.
func (m Meta) Get(hexHash string) MetaEntry {
	if entry, ok := m[hexHash]; ok {
		return *entry
	}
	return MetaEntry{Class: ClassTraceNoise}
}

// SetClass classifies a blob. A class change on a previously-classified
// blob appends to class_history; the initial classification does not.
func (m Meta) SetClass(hexHash string, class Class, by string) {
	entry, ok := m[hexHash]
	if !ok {
		entry = &MetaEntry{Class: ClassTraceNoise}
		m[hexHash] = entry
	}
	ts := nowRFC3339()
	if entry.ClassifiedAt != "" && entry.Class != class {
		entry.ClassHistory = append(entry.ClassHistory, ClassChange{
			From: entry.Class,
			To:   class,
			By:   by,
			At:   ts,
		})
	}
	entry.Class = class
	entry.ClassifiedBy = by
	entry.ClassifiedAt = ts
}

// SetPinned sets the pin flag for a blob.
func (m Meta) SetPinned(hexHash string, pinned bool) {
	entry, ok := m[hexHash]
	if !ok {
		entry = &MetaEntry{Class: ClassTraceNoise}
		m[hexHash] = entry
	}
	entry.Pinned = pinned
}

// LoadMeta reads blob_meta.json, returning an empty map when it is missing.
func LoadMeta(path string) (Meta, error) {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path from workspace layout
	if os.IsNotExist(err) {
		return Meta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob metadata: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing blob metadata: %w", err)
	}
	if m == nil {
		m = Meta{}
	}
	return m, nil
}

// SaveMeta writes blob_meta.json atomically (temp + rename). Metadata
// changes never touch the ledger chain.
func SaveMeta(path string, m Meta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling blob metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { // #nosec G306 - shared via git
		return fmt.Errorf("writing blob metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing blob metadata: %w", err)
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Package jsonl implements the JSONL ledger backend: one event per line in
// .edda/ledger/events.jsonl, refs in plain files, and a decision projection
// computed by streaming events.
package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fagemx/edda/internal/canon"
	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/telemetry"
	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/workspace"
)

// Store is the JSONL-backed ledger.
type Store struct {
	paths workspace.Paths
}

// Open returns a JSONL store over the workspace. The events file is created
// lazily on first append.
func Open(paths workspace.Paths) (*Store, error) {
	if !paths.IsInitialized() {
		return nil, storage.ErrNotInitialized
	}
	return &Store{paths: paths}, nil
}

// Backend returns "jsonl".
func (s *Store) Backend() string { return storage.BackendJSONL }

// Close is a no-op for the JSONL backend.
func (s *Store) Close() error { return nil }

// Paths exposes the workspace layout (used by the view writers).
func (s *Store) Paths() workspace.Paths { return s.paths }

// AppendEvent validates and appends one event under the workspace lock.
// The write is a single line append + fsync; a failed validation leaves
// the file untouched, and a torn trailing line from a crashed writer is
// ignored by readers and dropped by the next append before it writes.
func (s *Store) AppendEvent(ctx context.Context, e *types.Event) error {
	lock, err := s.paths.AcquireLock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	events, err := s.readEvents()
	if err != nil {
		return err
	}
	tip := ""
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Branch == e.Branch {
			tip = events[i].Hash
			break
		}
	}
	if err := storage.ValidateChain(e, tip); err != nil {
		return err
	}
	if err := storage.VerifyHash(e); err != nil {
		return err
	}

	line, err := canon.MarshalNoEscape(e)
	if err != nil {
		return fmt.Errorf("serializing event: %w", err)
	}

	if err := s.paths.EnsureLayout(); err != nil {
		return err
	}
	// A tail without a final newline is either a torn line (dropped) or a
	// complete event (terminated), so the new line starts on its own line.
	if data, err := os.ReadFile(s.paths.EventsJSONL); err == nil && len(data) > 0 && data[len(data)-1] != '\n' {
		cut := bytes.LastIndexByte(data, '\n') + 1
		if json.Valid(data[cut:]) {
			line = append([]byte{'\n'}, line...)
		} else if err := os.Truncate(s.paths.EventsJSONL, int64(cut)); err != nil {
			return fmt.Errorf("dropping torn trailing line: %w", err)
		}
	}
	f, err := os.OpenFile(s.paths.EventsJSONL, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302,G304 - shared via git, controlled path
	if err != nil {
		return fmt.Errorf("opening events.jsonl: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing events.jsonl: %w", err)
	}

	telemetry.EventAppended(ctx, storage.BackendJSONL, e.EventType)
	return nil
}

// IterEvents returns all events in append order. Empty lines are ignored
// and a trailing partial line (torn write) is tolerated; a malformed line
// anywhere else is an error.
func (s *Store) IterEvents(ctx context.Context) ([]types.Event, error) {
	return s.readEvents()
}

func (s *Store) readEvents() ([]types.Event, error) {
	data, err := os.ReadFile(s.paths.EventsJSONL)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading events.jsonl: %w", err)
	}

	lines := bytes.Split(data, []byte{'\n'})
	var events []types.Event
	for i, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e types.Event
		if err := json.Unmarshal(line, &e); err != nil {
			if onlyBlankAfter(lines, i) {
				// Torn trailing line from an interrupted append.
				break
			}
			return nil, fmt.Errorf("parsing event at line %d: %w", i+1, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func onlyBlankAfter(lines [][]byte, i int) bool {
	for _, rest := range lines[i+1:] {
		if len(bytes.TrimSpace(rest)) > 0 {
			return false
		}
	}
	return true
}

// HeadBranch reads refs/HEAD, defaulting to "main".
func (s *Store) HeadBranch(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.paths.HeadFile)
	if os.IsNotExist(err) {
		return "main", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	head := strings.TrimSpace(string(data))
	if head == "" {
		return "main", nil
	}
	return head, nil
}

// SetHeadBranch writes refs/HEAD atomically.
func (s *Store) SetHeadBranch(ctx context.Context, name string) error {
	return store.WriteAtomic(s.paths.HeadFile, []byte(name+"\n"))
}

// BranchesJSON reads refs/branches.json, defaulting to an empty document.
func (s *Store) BranchesJSON(ctx context.Context) (json.RawMessage, error) {
	data, err := os.ReadFile(s.paths.BranchesJSON)
	if os.IsNotExist(err) {
		return json.RawMessage(`{"branches":{}}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading branches.json: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetBranchesJSON writes refs/branches.json atomically.
func (s *Store) SetBranchesJSON(ctx context.Context, value json.RawMessage) error {
	return store.WriteAtomic(s.paths.BranchesJSON, value)
}

// ActiveDecisions streams events and filters the derived projection.
func (s *Store) ActiveDecisions(ctx context.Context, domain, keyword string) ([]types.DecisionRow, error) {
	rows, err := s.decisionRows(ctx)
	if err != nil {
		return nil, err
	}
	return storage.FilterActive(rows, domain, keyword), nil
}

// DecisionTimeline returns all rows for a key, newest first.
func (s *Store) DecisionTimeline(ctx context.Context, key string) ([]types.DecisionRow, error) {
	rows, err := s.decisionRows(ctx)
	if err != nil {
		return nil, err
	}
	return storage.TimelineByKey(rows, key), nil
}

// DomainTimeline returns all rows in a domain, newest first.
func (s *Store) DomainTimeline(ctx context.Context, domain string) ([]types.DecisionRow, error) {
	rows, err := s.decisionRows(ctx)
	if err != nil {
		return nil, err
	}
	return storage.TimelineByDomain(rows, domain), nil
}

// ListDomains returns the sorted distinct decision domains.
func (s *Store) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := s.decisionRows(ctx)
	if err != nil {
		return nil, err
	}
	return storage.Domains(rows), nil
}

func (s *Store) decisionRows(ctx context.Context) ([]types.DecisionRow, error) {
	events, err := s.IterEvents(ctx)
	if err != nil {
		return nil, err
	}
	return storage.BuildDecisionRows(events), nil
}

// LastEventHash returns the hash of the last appended event, or "".
func (s *Store) LastEventHash(ctx context.Context) (string, error) {
	events, err := s.readEvents()
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}
	return events[len(events)-1].Hash, nil
}

// TipHash returns the hash of the last event on a branch, or "".
func (s *Store) TipHash(ctx context.Context, branch string) (string, error) {
	events, err := s.readEvents()
	if err != nil {
		return "", err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Branch == branch {
			return events[i].Hash, nil
		}
	}
	return "", nil
}

var _ storage.Ledger = (*Store)(nil)

// Package storage defines the backend-agnostic Ledger interface over the
// append-only event log and its derived decision projection.
//
// Two backends implement it: JSONL (storage/jsonl) and SQLite
// (storage/sqlite). Code above the ledger never depends on the backend
// choice; migration swaps the storage variant, not the interface.
package storage

import (
	"context"
	"encoding/json"

	"github.com/fagemx/edda/internal/blob"
	"github.com/fagemx/edda/internal/types"
)

// Backend names.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Ledger is the capability set shared by both storage backends.
type Ledger interface {
	// AppendEvent validates the parent chain and stored hash, persists the
	// event atomically under the workspace lock, and updates the decision
	// projection in the same step. Failure leaves the store unchanged.
	AppendEvent(ctx context.Context, e *types.Event) error

	// IterEvents returns all events in append order.
	IterEvents(ctx context.Context) ([]types.Event, error)

	// HeadBranch returns the current branch name ("main" when unset).
	HeadBranch(ctx context.Context) (string, error)
	SetHeadBranch(ctx context.Context, name string) error

	// BranchesJSON returns the per-branch summary document (refs value).
	BranchesJSON(ctx context.Context) (json.RawMessage, error)
	SetBranchesJSON(ctx context.Context, value json.RawMessage) error

	// ActiveDecisions returns active rows, optionally filtered by exact
	// domain and by case-insensitive keyword over key/value/reason.
	ActiveDecisions(ctx context.Context, domain, keyword string) ([]types.DecisionRow, error)

	// DecisionTimeline returns all rows for a key, newest first.
	DecisionTimeline(ctx context.Context, key string) ([]types.DecisionRow, error)

	// DomainTimeline returns all rows in a domain, newest first.
	DomainTimeline(ctx context.Context, domain string) ([]types.DecisionRow, error)

	// ListDomains returns the sorted distinct decision domains.
	ListDomains(ctx context.Context) ([]string, error)

	// LastEventHash returns the hash of the most recently appended event
	// across all branches, or "" for an empty ledger.
	LastEventHash(ctx context.Context) (string, error)

	// TipHash returns the hash of the last event on a branch, or "" when
	// the branch has no events.
	TipHash(ctx context.Context, branch string) (string, error)

	// Backend returns the backend name.
	Backend() string

	Close() error
}

// TombstoneRecorder is implemented by backends that mirror blob tombstones
// into their own storage (the SQLite backend).
type TombstoneRecorder interface {
	RecordTombstone(ctx context.Context, t blob.Tombstone) error
}

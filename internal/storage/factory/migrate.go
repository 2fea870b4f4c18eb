package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fagemx/edda/internal/canon"
	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/storage/jsonl"
	"github.com/fagemx/edda/internal/storage/sqlite"
	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/workspace"
)

// MigrateOptions controls migration behavior.
type MigrateOptions struct {
	// Verify runs post-migration verification (default true).
	Verify bool
	// DryRun reports what would be migrated without making changes.
	DryRun bool
}

// DefaultMigrateOptions returns the defaults (verify on, dry-run off).
func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{Verify: true}
}

// MigrationReport summarizes a completed (or dry-run) migration.
type MigrationReport struct {
	EventsMigrated int
	DecisionsFound int
	HeadBranch     string
	BranchesCount  int
}

// MigrateJSONLToSQLite replays a legacy JSONL workspace into a new
// ledger.db, mirrors HEAD and branches.json into refs, and verifies the
// result. Refuses to run when ledger.db already exists; any verification
// failure removes the partial database (including -wal/-shm).
func MigrateJSONLToSQLite(ctx context.Context, paths workspace.Paths, opts MigrateOptions) (*MigrationReport, error) {
	if fileExists(paths.LedgerDB) {
		return nil, fmt.Errorf("ledger.db already exists — workspace already uses SQLite")
	}
	if !fileExists(paths.EventsJSONL) {
		return nil, fmt.Errorf("events.jsonl not found — nothing to migrate")
	}

	src, err := jsonl.Open(paths)
	if err != nil {
		return nil, err
	}
	events, err := src.IterEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading source events: %w", err)
	}
	head, err := src.HeadBranch(ctx)
	if err != nil {
		return nil, err
	}
	branches, err := src.BranchesJSON(ctx)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &MigrationReport{
			EventsMigrated: len(events),
			DecisionsFound: countDecisions(events),
			HeadBranch:     head,
			BranchesCount:  countBranches(branches),
		}, nil
	}

	// Migration is a write sequence: hold the workspace lock throughout.
	lock, err := paths.AcquireLock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	report, err := doMigration(ctx, paths, events, head, branches, opts)
	if err != nil {
		removePartialDB(paths)
		return nil, err
	}
	return report, nil
}

func doMigration(ctx context.Context, paths workspace.Paths, events []types.Event, head string, branches json.RawMessage, opts MigrateOptions) (*MigrationReport, error) {
	dst, err := sqlite.OpenOrCreate(paths)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dst.Close() }()

	for i := range events {
		if err := dst.ReplayEvent(ctx, &events[i]); err != nil {
			return nil, fmt.Errorf("replaying event %s: %w", events[i].EventID, err)
		}
	}
	if err := dst.SetHeadBranch(ctx, head); err != nil {
		return nil, err
	}
	if err := dst.SetBranchesJSON(ctx, branches); err != nil {
		return nil, err
	}

	if opts.Verify {
		if err := verifyMigration(ctx, dst, events, head, branches); err != nil {
			return nil, err
		}
	}

	active, err := dst.ActiveDecisions(ctx, "", "")
	if err != nil {
		return nil, err
	}

	return &MigrationReport{
		EventsMigrated: len(events),
		DecisionsFound: len(active),
		HeadBranch:     head,
		BranchesCount:  countBranches(branches),
	}, nil
}

func verifyMigration(ctx context.Context, dst storage.Ledger, original []types.Event, head string, branches json.RawMessage) error {
	migrated, err := dst.IterEvents(ctx)
	if err != nil {
		return err
	}
	if len(migrated) != len(original) {
		return fmt.Errorf("event count mismatch: JSONL=%d, SQLite=%d", len(original), len(migrated))
	}
	for i := range original {
		if original[i].EventID != migrated[i].EventID {
			return fmt.Errorf("event_id mismatch at index %d", i)
		}
		if original[i].Hash != migrated[i].Hash {
			return fmt.Errorf("hash mismatch at index %d (event %s)", i, original[i].EventID)
		}
	}

	// Per-branch chain integrity over the migrated sequence.
	tips := map[string]string{}
	for i, e := range migrated {
		tip := tips[e.Branch]
		if tip == "" {
			if e.ParentHash != nil {
				return fmt.Errorf("hash chain broken at index %d: unexpected parent_hash on branch root", i)
			}
		} else {
			if e.ParentHash == nil {
				return fmt.Errorf("hash chain broken at index %d: parent_hash is null", i)
			}
			if *e.ParentHash != tip {
				return fmt.Errorf("hash chain broken at index %d: expected parent=%s, got=%s", i, tip, *e.ParentHash)
			}
		}
		tips[e.Branch] = e.Hash
	}

	migratedHead, err := dst.HeadBranch(ctx)
	if err != nil {
		return err
	}
	if migratedHead != head {
		return fmt.Errorf("HEAD mismatch: expected=%s, got=%s", head, migratedHead)
	}
	migratedBranches, err := dst.BranchesJSON(ctx)
	if err != nil {
		return err
	}
	if !jsonEqual(migratedBranches, branches) {
		return fmt.Errorf("branches.json content mismatch")
	}
	return nil
}

// removePartialDB deletes a partially-created ledger.db and its WAL files.
func removePartialDB(paths workspace.Paths) {
	_ = os.Remove(paths.LedgerDB)
	_ = os.Remove(paths.LedgerDB + "-wal")
	_ = os.Remove(paths.LedgerDB + "-shm")
}

func jsonEqual(a, b json.RawMessage) bool {
	av, errA := canon.Decode(a)
	bv, errB := canon.Decode(b)
	if errA != nil || errB != nil {
		return false
	}
	ab, errA := canon.Canonicalize(av)
	bb, errB := canon.Canonicalize(bv)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

func countDecisions(events []types.Event) int {
	n := 0
	for i := range events {
		if _, ok := types.DecisionOf(&events[i]); ok {
			n++
		}
	}
	return n
}

func countBranches(branches json.RawMessage) int {
	var doc struct {
		Branches map[string]json.RawMessage `json:"branches"`
	}
	if err := json.Unmarshal(branches, &doc); err != nil {
		return 0
	}
	return len(doc.Branches)
}

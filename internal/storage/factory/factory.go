// Package factory opens the right ledger backend for a workspace and owns
// the one-shot JSONL-to-SQLite migration.
package factory

import (
	"os"

	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/storage/jsonl"
	"github.com/fagemx/edda/internal/storage/sqlite"
	"github.com/fagemx/edda/internal/workspace"
)

// Open detects the backend (SQLite if ledger.db exists, else JSONL) and
// opens it.
func Open(paths workspace.Paths) (storage.Ledger, error) {
	if !paths.IsInitialized() {
		return nil, storage.ErrNotInitialized
	}
	if fileExists(paths.LedgerDB) {
		return sqlite.Open(paths)
	}
	return jsonl.Open(paths)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

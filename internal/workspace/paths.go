// Package workspace resolves the .edda/ workspace from any repository
// subpath and owns its on-disk layout and exclusive write lock.
package workspace

import (
	"os"
	"path/filepath"
)

// Paths holds every well-known path under .edda/. It is a pure computation
// from the resolved repository root; no I/O happens at construction.
type Paths struct {
	Root            string
	EddaDir         string
	LedgerDir       string
	LedgerDB        string
	EventsJSONL     string
	BlobsDir        string
	BlobMetaJSON    string
	TombstonesJSONL string
	RefsDir         string
	HeadFile        string
	BranchesJSON    string
	BranchesDir     string
	DraftsDir       string
	PatternsDir     string
	ArchiveDir      string
	ArchiveBlobsDir string
	ConfigJSON      string
	LockFile        string
}

// Discover derives all paths from a repository root.
func Discover(root string) Paths {
	eddaDir := filepath.Join(root, ".edda")
	ledgerDir := filepath.Join(eddaDir, "ledger")
	refsDir := filepath.Join(eddaDir, "refs")
	archiveDir := filepath.Join(eddaDir, "archive")
	return Paths{
		Root:            root,
		EddaDir:         eddaDir,
		LedgerDir:       ledgerDir,
		LedgerDB:        filepath.Join(eddaDir, "ledger.db"),
		EventsJSONL:     filepath.Join(ledgerDir, "events.jsonl"),
		BlobsDir:        filepath.Join(ledgerDir, "blobs"),
		BlobMetaJSON:    filepath.Join(ledgerDir, "blob_meta.json"),
		TombstonesJSONL: filepath.Join(ledgerDir, "tombstones.jsonl"),
		RefsDir:         refsDir,
		HeadFile:        filepath.Join(refsDir, "HEAD"),
		BranchesJSON:    filepath.Join(refsDir, "branches.json"),
		BranchesDir:     filepath.Join(eddaDir, "branches"),
		DraftsDir:       filepath.Join(eddaDir, "drafts"),
		PatternsDir:     filepath.Join(eddaDir, "patterns"),
		ArchiveDir:      archiveDir,
		ArchiveBlobsDir: filepath.Join(archiveDir, "blobs"),
		ConfigJSON:      filepath.Join(eddaDir, "config.json"),
		LockFile:        filepath.Join(eddaDir, "LOCK"),
	}
}

// EnsureLayout creates all required directories. Idempotent.
func (p Paths) EnsureLayout() error {
	for _, dir := range []string{
		p.LedgerDir,
		p.BlobsDir,
		p.RefsDir,
		p.BranchesDir,
		p.DraftsDir,
		p.PatternsDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// IsInitialized reports whether .edda/ exists.
func (p Paths) IsInitialized() bool {
	info, err := os.Stat(p.EddaDir)
	return err == nil && info.IsDir()
}

// BranchDir resolves the view-artifact directory for a branch.
func (p Paths) BranchDir(name string) string {
	return filepath.Join(p.BranchesDir, name)
}

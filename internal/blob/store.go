// Package blob implements the content-addressed byte store under
// .edda/ledger/blobs/, with out-of-chain classification metadata,
// archival, tombstones, and the GC reaper.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fagemx/edda/internal/canon"
	"github.com/fagemx/edda/internal/workspace"
)

// RefPrefix is the blob reference scheme.
const RefPrefix = "blob:sha256:"

// Info describes one stored blob.
type Info struct {
	Hash string // hex hash, the filename in blobs/
	Size int64
}

// Put writes bytes to the blob store and returns "blob:sha256:<hex>".
// Atomic (temp file + rename, fsync before rename) and idempotent: if the
// blob already exists the ref is returned immediately.
func Put(paths workspace.Paths, data []byte) (string, error) {
	hexHash := canon.SHA256Hex(data)
	finalPath := filepath.Join(paths.BlobsDir, hexHash)
	ref := RefPrefix + hexHash

	// Content-addressable: if it exists, it's identical.
	if _, err := os.Stat(finalPath); err == nil {
		return ref, nil
	}

	if err := os.MkdirAll(paths.BlobsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating blobs dir: %w", err)
	}
	tmpPath := filepath.Join(paths.BlobsDir, ".tmp_"+hexHash)
	f, err := os.Create(tmpPath) // #nosec G304 - controlled path from workspace layout
	if err != nil {
		return "", fmt.Errorf("creating blob temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("syncing blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("closing blob temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("renaming blob into place: %w", err)
	}
	return ref, nil
}

// PutClassified stores bytes and records their classification in
// blob_meta.json in one call.
func PutClassified(paths workspace.Paths, data []byte, class Class) (string, error) {
	ref, err := Put(paths, data)
	if err != nil {
		return "", err
	}
	hexHash := strings.TrimPrefix(ref, RefPrefix)
	meta, err := LoadMeta(paths.BlobMetaJSON)
	if err != nil {
		return "", err
	}
	meta.SetClass(hexHash, class, "auto")
	if err := SaveMeta(paths.BlobMetaJSON, meta); err != nil {
		return "", err
	}
	return ref, nil
}

// ParseRef extracts the hex hash from a blob ref.
func ParseRef(ref string) (string, error) {
	hexHash, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok || hexHash == "" {
		return "", fmt.Errorf("invalid blob ref format: %s", ref)
	}
	return hexHash, nil
}

// GetPath resolves a blob ref to its filesystem path, checking the active
// store first and falling back to the archive. A missing blob is an error.
func GetPath(paths workspace.Paths, ref string) (string, error) {
	hexHash, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	active := filepath.Join(paths.BlobsDir, hexHash)
	if _, err := os.Stat(active); err == nil {
		return active, nil
	}
	archived := filepath.Join(paths.ArchiveBlobsDir, hexHash)
	if _, err := os.Stat(archived); err == nil {
		return archived, nil
	}
	return "", fmt.Errorf("blob not found: %s", ref)
}

// List returns all active blobs with their sizes. Temp files are skipped.
func List(paths workspace.Paths) ([]Info, error) {
	return listDir(paths.BlobsDir)
}

// ListArchived returns all archived blobs with their sizes.
func ListArchived(paths workspace.Paths) ([]Info, error) {
	return listDir(paths.ArchiveBlobsDir)
}

func listDir(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}
	var blobs []Info
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".tmp_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		blobs = append(blobs, Info{Hash: name, Size: info.Size()})
	}
	return blobs, nil
}

// Size returns the size of an active blob by hash.
func Size(paths workspace.Paths, hexHash string) (int64, error) {
	info, err := os.Stat(filepath.Join(paths.BlobsDir, hexHash))
	if err != nil {
		return 0, fmt.Errorf("blob not found: %s", hexHash)
	}
	return info.Size(), nil
}

// Archive moves a blob from the active store to archive/blobs/. Archived
// blobs remain resolvable via GetPath but leave the active listing.
// Returns the bytes archived.
func Archive(paths workspace.Paths, hexHash string) (int64, error) {
	src := filepath.Join(paths.BlobsDir, hexHash)
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("blob not found in active store: %s", hexHash)
	}
	if err := os.MkdirAll(paths.ArchiveBlobsDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating archive dir: %w", err)
	}
	if err := os.Rename(src, filepath.Join(paths.ArchiveBlobsDir, hexHash)); err != nil {
		return 0, fmt.Errorf("archiving blob %s: %w", hexHash, err)
	}
	return info.Size(), nil
}

// IsArchived reports whether a blob lives in the archive (and not the
// active store).
func IsArchived(paths workspace.Paths, hexHash string) bool {
	if _, err := os.Stat(filepath.Join(paths.BlobsDir, hexHash)); err == nil {
		return false
	}
	_, err := os.Stat(filepath.Join(paths.ArchiveBlobsDir, hexHash))
	return err == nil
}

// Remove permanently deletes an active blob and appends a tombstone.
// Returns the bytes freed.
func Remove(paths workspace.Paths, hexHash, lastClass, reason string) (int64, error) {
	path := filepath.Join(paths.BlobsDir, hexHash)
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("blob not found: %s", hexHash)
	}
	size := info.Size()
	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("removing blob %s: %w", hexHash, err)
	}
	tomb := Tombstone{
		BlobHash:       hexHash,
		LastKnownClass: lastClass,
		SizeBytes:      size,
		Reason:         reason,
		DeletedAt:      nowRFC3339(),
	}
	if err := AppendTombstone(paths.TombstonesJSONL, tomb); err != nil {
		return size, err
	}
	return size, nil
}

// Package store owns the per-project state directory used by the transcript
// pipeline and the coordination board: ~/.edda/projects/<project_id>/ with
// state/, transcripts/, and index/ subdirectories.
//
// Unlike the .edda/ workspace (shared through git), this tree is host-local:
// heartbeats, cursors, and coordination logs never travel with the repo.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fagemx/edda/internal/config"
)

// Root returns the state-store root directory: EDDA_STATE_DIR, then the
// user config key store.root, then ~/.edda.
func Root() string {
	if dir := os.Getenv("EDDA_STATE_DIR"); dir != "" {
		return dir
	}
	if override := config.StoreRootOverride(); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Last resort so callers still get a usable path.
		return filepath.Join(os.TempDir(), "edda")
	}
	return filepath.Join(home, ".edda")
}

// ProjectID derives a stable identifier for a repository root: the
// sanitized basename plus a short content hash of the absolute path, so
// same-named checkouts in different locations stay distinct.
func ProjectID(repoRoot string) string {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		abs = repoRoot
	}
	sum := sha256.Sum256([]byte(abs))
	base := sanitize(filepath.Base(abs))
	if base == "" {
		base = "project"
	}
	return base + "-" + hex.EncodeToString(sum[:4])
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// ProjectDir returns the state directory for a project id.
func ProjectDir(projectID string) string {
	return filepath.Join(Root(), "projects", projectID)
}

// StateDir returns the state/ subdirectory for a project id.
func StateDir(projectID string) string {
	return filepath.Join(ProjectDir(projectID), "state")
}

// EnsureDirs creates the project's state/transcripts/index directories.
func EnsureDirs(projectID string) (string, error) {
	dir := ProjectDir(projectID)
	for _, sub := range []string{"state", "transcripts", "index"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating project state dirs: %w", err)
		}
	}
	return dir, nil
}

// WriteAtomic writes data to path via a temp file and rename, so readers
// never observe a partially-written file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

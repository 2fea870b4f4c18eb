// Package lockfile provides OS-advisory exclusive file locks used to
// serialize workspace writes and per-session transcript ingest.
//
// Locks are non-blocking: contention surfaces immediately as ErrLocked so
// callers can fail fast or retry with their own backoff.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned when a lock is held by another process.
var ErrLocked = errors.New("lock held by another process")

// IsLocked reports whether err indicates lock contention.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// Lock is a held advisory file lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire opens (creating if needed) the lock file at path and takes an
// exclusive non-blocking lock on it. Returns ErrLocked on contention.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G302,G304 - controlled path from caller
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. Calls after the first are
// no-ops.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, unlockErr)
	}
	return closeErr
}

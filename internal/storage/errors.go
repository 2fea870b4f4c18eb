package storage

import "errors"

// Sentinel errors shared by both backends.
var (
	// ErrChainConflict indicates the event's parent_hash does not match the
	// stored branch tail — usually another writer appended between the
	// caller's read and write. Surfaced to the caller; retry by rebuilding
	// the event against the new tip.
	ErrChainConflict = errors.New("chain conflict: parent hash does not match branch tail")

	// ErrHashMismatch indicates the event's stored hash does not equal its
	// recomputed hash. The event is malformed; this is a caller bug.
	ErrHashMismatch = errors.New("hash mismatch: stored hash does not match recomputed hash")

	// ErrNotInitialized indicates the workspace has no .edda/ directory.
	ErrNotInitialized = errors.New("workspace not initialized (no .edda directory)")
)

package storage

import (
	"fmt"

	"github.com/fagemx/edda/internal/types"
)

// ValidateChain checks the append protocol's chain rule against the stored
// branch tail. tipHash is "" when the branch has no events.
func ValidateChain(e *types.Event, tipHash string) error {
	if e.ParentHash == nil {
		if tipHash != "" {
			return fmt.Errorf("branch %s already has events (tail %s): %w", e.Branch, tipHash, ErrChainConflict)
		}
		return nil
	}
	if tipHash == "" {
		return fmt.Errorf("branch %s has no events but parent_hash is set: %w", e.Branch, ErrChainConflict)
	}
	if *e.ParentHash != tipHash {
		return fmt.Errorf("branch %s tail is %s, event parent is %s: %w", e.Branch, tipHash, *e.ParentHash, ErrChainConflict)
	}
	return nil
}

// VerifyHash recomputes the event hash and compares it to the stored value.
func VerifyHash(e *types.Event) error {
	recomputed, err := types.ComputeHash(e)
	if err != nil {
		return fmt.Errorf("recomputing hash for %s: %w", e.EventID, err)
	}
	if recomputed != e.Hash {
		return fmt.Errorf("event %s: stored %s, recomputed %s: %w", e.EventID, e.Hash, recomputed, ErrHashMismatch)
	}
	return nil
}

package workspace

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fagemx/edda/internal/lockfile"
)

// AcquireLock takes the workspace-exclusive advisory lock. Write sequences
// (append, classify, archive, migrate) hold it for their duration; readers
// never take it. Contention fails fast with lockfile.ErrLocked.
func (p Paths) AcquireLock() (*lockfile.Lock, error) {
	l, err := lockfile.Acquire(p.LockFile)
	if err != nil {
		if lockfile.IsLocked(err) {
			return nil, fmt.Errorf("workspace busy (another edda process is writing), retry shortly: %w", err)
		}
		return nil, err
	}
	return l, nil
}

// AcquireLockWithRetry retries lock acquisition with exponential backoff up
// to maxWait. Only contention is retried; other errors surface immediately.
func (p Paths) AcquireLockWithRetry(maxWait time.Duration) (*lockfile.Lock, error) {
	var held *lockfile.Lock
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxElapsedTime = maxWait

	err := backoff.Retry(func() error {
		l, err := p.AcquireLock()
		if err != nil {
			if lockfile.IsLocked(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		held = l
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return held, nil
}

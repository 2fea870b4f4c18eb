package board

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fagemx/edda/internal/debug"
	"github.com/fagemx/edda/internal/store"
)

// watchDebounce coalesces bursts of state-file writes into one refresh.
const watchDebounce = 200 * time.Millisecond

// Watch streams board snapshots whenever the project's state directory
// changes, debounced. The channel closes when the context is cancelled.
// Snapshot errors are logged and skipped; the watch keeps running.
func Watch(ctx context.Context, projectID string) (<-chan *Snapshot, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	stateDir := store.StateDir(projectID)
	if err := watcher.Add(stateDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ch := make(chan *Snapshot, 1)
	go func() {
		defer close(ch)
		defer func() { _ = watcher.Close() }()

		emit := func() {
			snap, err := BuildSnapshot(projectID)
			if err != nil {
				debug.Logf("board watch: snapshot failed: %v\n", err)
				return
			}
			select {
			case ch <- snap:
			case <-ctx.Done():
			}
		}

		// Initial snapshot so consumers render immediately.
		emit()

		var debounce *time.Timer
		var debounceC <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(watchDebounce)
					debounceC = debounce.C
				} else {
					debounce.Reset(watchDebounce)
				}
			case <-debounceC:
				debounce = nil
				debounceC = nil
				emit()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				debug.Logf("board watch: %v\n", err)
			}
		}
	}()
	return ch, nil
}

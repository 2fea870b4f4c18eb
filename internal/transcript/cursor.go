// Package transcript implements cursor-based delta ingest of externally
// written JSONL transcripts, the filter policy, and the per-session
// byte-offset index enabling deterministic line fetch.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fagemx/edda/internal/store"
)

// Cursor tracks resumable ingest state for one session.
type Cursor struct {
	Offset        uint64 `json:"offset"`
	FileSize      uint64 `json:"file_size"`
	MtimeUnix     int64  `json:"mtime_unix"`
	UpdatedAtUnix int64  `json:"updated_at_unix"`
}

func cursorPath(stateDir, sessionID string) string {
	return filepath.Join(stateDir, fmt.Sprintf("cursor.%s.json", sessionID))
}

// LoadCursor reads a session cursor, returning a zero cursor when absent.
func LoadCursor(stateDir, sessionID string) (Cursor, error) {
	data, err := os.ReadFile(cursorPath(stateDir, sessionID)) // #nosec G304 - controlled path from state layout
	if os.IsNotExist(err) {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("reading cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		// A corrupt cursor restarts ingest from zero rather than wedging
		// the session.
		return Cursor{}, nil
	}
	return c, nil
}

// Save persists the cursor atomically.
func (c Cursor) Save(stateDir, sessionID string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling cursor: %w", err)
	}
	return store.WriteAtomic(cursorPath(stateDir, sessionID), data)
}

// DetectTruncation resets the offset when the source shrank below the last
// observed size (the external producer rotated or rewrote the file).
func (c *Cursor) DetectTruncation(currentSize uint64) {
	if currentSize < c.FileSize {
		c.Offset = 0
	}
}

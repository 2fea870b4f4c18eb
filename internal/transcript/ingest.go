package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fagemx/edda/internal/lockfile"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/telemetry"
)

// DefaultMaxBytes caps one ingest read; overridable with
// EDDA_TRANSCRIPT_MAX_BYTES. Callers drain large sources by calling
// IngestDelta repeatedly.
const DefaultMaxBytes = 4 * 1024 * 1024

// IndexWriter is called for each kept record with the raw line, its store
// offset and length, and the parsed JSON.
type IndexWriter func(rawLine []byte, storeOffset, storeLen uint64, parsed map[string]any) error

// IngestStats summarizes one delta ingest.
type IngestStats struct {
	RecordsRead    int            `json:"records_read"`
	RecordsKept    int            `json:"records_kept"`
	RecordsDropped int            `json:"records_dropped"`
	BytesRead      uint64         `json:"bytes_read"`
	KeptByType     map[string]int `json:"kept_by_type"`
	DroppedByType  map[string]int `json:"dropped_by_type"`
	FromOffset     uint64         `json:"from_offset"`
	ToOffset       uint64         `json:"to_offset"`
}

func newStats(offset uint64) IngestStats {
	return IngestStats{
		KeptByType:    map[string]int{},
		DroppedByType: map[string]int{},
		FromOffset:    offset,
		ToOffset:      offset,
	}
}

func maxBytes() uint64 {
	if v := os.Getenv("EDDA_TRANSCRIPT_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxBytes
}

// IngestDelta performs one cursor-based delta ingest from an external JSONL
// transcript into the session's verbatim store.
//
// Bytes already committed to the store are never rewritten; one call never
// consumes past the last newline in the source snapshot; source truncation
// resets the cursor to zero.
func IngestDelta(ctx context.Context, projectDir, sessionID, transcriptPath string, indexWriter IndexWriter) (IngestStats, error) {
	stateDir := filepath.Join(projectDir, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return IngestStats{}, fmt.Errorf("creating state dir: %w", err)
	}

	// Ingest for one session is serialized by a per-session lock.
	lock, err := lockfile.Acquire(filepath.Join(stateDir, fmt.Sprintf("ingest.%s.lock", sessionID)))
	if err != nil {
		return IngestStats{}, err
	}
	defer func() { _ = lock.Release() }()

	cursor, err := LoadCursor(stateDir, sessionID)
	if err != nil {
		return IngestStats{}, err
	}

	meta, err := os.Stat(transcriptPath)
	if err != nil {
		return IngestStats{}, fmt.Errorf("reading transcript metadata: %w", err)
	}
	fileSize := uint64(meta.Size())
	cursor.DetectTruncation(fileSize)

	if cursor.Offset >= fileSize {
		return newStats(cursor.Offset), nil
	}

	f, err := os.Open(transcriptPath) // #nosec G304 - caller-provided transcript path
	if err != nil {
		return IngestStats{}, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(int64(cursor.Offset), io.SeekStart); err != nil {
		return IngestStats{}, fmt.Errorf("seeking transcript: %w", err)
	}

	toRead := fileSize - cursor.Offset
	if limit := maxBytes(); toRead > limit {
		toRead = limit
	}
	buf := make([]byte, toRead)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return IngestStats{}, fmt.Errorf("reading transcript: %w", err)
	}
	buf = buf[:n]

	// Partial-line protection: only consume up to the last newline.
	consumable := bytes.LastIndexByte(buf, '\n') + 1
	if consumable == 0 {
		return newStats(cursor.Offset), nil
	}
	data := buf[:consumable]

	stats := newStats(cursor.Offset)
	stats.BytesRead = uint64(consumable)
	stats.ToOffset = cursor.Offset + uint64(consumable)

	// Open the verbatim store for append.
	transcriptsDir := filepath.Join(projectDir, "transcripts")
	if err := os.MkdirAll(transcriptsDir, 0o755); err != nil {
		return IngestStats{}, fmt.Errorf("creating transcripts dir: %w", err)
	}
	storePath := filepath.Join(transcriptsDir, sessionID+".jsonl")
	storeFile, err := os.OpenFile(storePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302,G304 - host-local state
	if err != nil {
		return IngestStats{}, fmt.Errorf("opening transcript store: %w", err)
	}
	defer storeFile.Close()
	storeOffset, err := storeFile.Seek(0, io.SeekEnd)
	if err != nil {
		return IngestStats{}, fmt.Errorf("seeking transcript store: %w", err)
	}

	progress, err := loadProgressLast(stateDir, sessionID)
	if err != nil {
		return IngestStats{}, err
	}

	for _, rawLine := range bytes.Split(data, []byte{'\n'}) {
		if len(rawLine) == 0 {
			continue
		}
		stats.RecordsRead++

		var parsed map[string]any
		if err := json.Unmarshal(rawLine, &parsed); err != nil {
			stats.RecordsDropped++
			stats.DroppedByType["parse_error"]++
			continue
		}
		recordType := RecordType(parsed)

		switch Classify(parsed) {
		case ActionKeep:
			if _, err := storeFile.Write(rawLine); err != nil {
				return stats, fmt.Errorf("writing transcript store: %w", err)
			}
			if _, err := storeFile.Write([]byte{'\n'}); err != nil {
				return stats, fmt.Errorf("writing transcript store: %w", err)
			}
			storeLen := uint64(len(rawLine)) + 1
			if indexWriter != nil {
				if err := indexWriter(rawLine, uint64(storeOffset), storeLen, parsed); err != nil {
					return stats, err
				}
			}
			storeOffset += int64(storeLen)
			stats.RecordsKept++
			stats.KeptByType[recordType]++
		case ActionProgress:
			UpdateProgressLast(progress, parsed)
			stats.RecordsDropped++
			stats.DroppedByType[recordType]++
		case ActionDrop:
			stats.RecordsDropped++
			stats.DroppedByType[recordType]++
		}
	}

	if err := saveProgressLast(stateDir, sessionID, progress); err != nil {
		return stats, err
	}

	cursor.Offset = stats.ToOffset
	cursor.FileSize = fileSize
	cursor.MtimeUnix = meta.ModTime().Unix()
	cursor.UpdatedAtUnix = time.Now().Unix()
	if err := cursor.Save(stateDir, sessionID); err != nil {
		return stats, err
	}

	telemetry.RecordsIngested(ctx, sessionID, int64(stats.RecordsKept))
	return stats, nil
}

func progressPath(stateDir, sessionID string) string {
	return filepath.Join(stateDir, fmt.Sprintf("progress_last.%s.json", sessionID))
}

func loadProgressLast(stateDir, sessionID string) (map[string]any, error) {
	data, err := os.ReadFile(progressPath(stateDir, sessionID)) // #nosec G304 - controlled path from state layout
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading progress state: %w", err)
	}
	var progress map[string]any
	if err := json.Unmarshal(data, &progress); err != nil {
		return map[string]any{}, nil
	}
	return progress, nil
}

func saveProgressLast(stateDir, sessionID string, progress map[string]any) error {
	data, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling progress state: %w", err)
	}
	return store.WriteAtomic(progressPath(stateDir, sessionID), data)
}

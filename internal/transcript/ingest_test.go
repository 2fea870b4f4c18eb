package transcript

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
}

func TestIngestBasicKeepAndDrop(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	transcript := writeTranscript(t, tmp,
		`{"type":"user","uuid":"u1","message":{"content":"hello"}}`,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","message":{"content":[{"type":"text","text":"hi"}]}}`,
		`{"type":"progress","toolUseID":"t1","data":{"output":"running"}}`,
		`{"type":"system","subtype":"turn_duration","duration_ms":100}`,
	)

	stats, err := IngestDelta(context.Background(), projectDir, "sess1", transcript, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.RecordsRead)
	assert.Equal(t, 2, stats.RecordsKept)
	assert.Equal(t, 2, stats.RecordsDropped)
	assert.Equal(t, 1, stats.KeptByType["user"])
	assert.Equal(t, 1, stats.KeptByType["assistant"])
	assert.Equal(t, 1, stats.DroppedByType["progress"])
	assert.Equal(t, 1, stats.DroppedByType["system"])

	// Verbatim store holds exactly the kept lines.
	content, err := os.ReadFile(StorePath(projectDir, "sess1"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"user"`)
	assert.Contains(t, lines[1], `"type":"assistant"`)

	// Progress payload captured by tool_use_id.
	progressData, err := os.ReadFile(filepath.Join(projectDir, "state", "progress_last.sess1.json"))
	require.NoError(t, err)
	var progress map[string]any
	require.NoError(t, json.Unmarshal(progressData, &progress))
	assert.Contains(t, progress, "t1")
}

// End-to-end scenario: transcript delta.
func TestIngestCursorBasedDelta(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	transcript := writeTranscript(t, tmp,
		`{"type":"user","uuid":"u1","message":{"content":"one"}}`,
		`{"type":"user","uuid":"u2","message":{"content":"two"}}`,
		`{"type":"user","uuid":"u3","message":{"content":"three"}}`,
	)
	ctx := context.Background()

	stats1, err := IngestDelta(ctx, projectDir, "sess1", transcript, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats1.RecordsKept)

	appendLines(t, transcript, `{"type":"user","uuid":"u4","message":{"content":"four"}}`)

	stats2, err := IngestDelta(ctx, projectDir, "sess1", transcript, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats2.RecordsKept)
	assert.Equal(t, stats1.ToOffset, stats2.FromOffset)

	count, err := CountStoreLines(StorePath(projectDir, "sess1"))
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestIngestNothingNewReturnsZeroStats(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	transcript := writeTranscript(t, tmp, `{"type":"user","uuid":"u1","message":{"content":"x"}}`)
	ctx := context.Background()

	_, err := IngestDelta(ctx, projectDir, "sess1", transcript, nil)
	require.NoError(t, err)

	stats, err := IngestDelta(ctx, projectDir, "sess1", transcript, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.RecordsRead)
	assert.Zero(t, stats.BytesRead)
	assert.Equal(t, stats.FromOffset, stats.ToOffset)
}

func TestIngestPartialLineNotConsumed(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	path := filepath.Join(tmp, "transcript.jsonl")
	// Complete line plus a partial trailing line with no newline.
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"type":"user","uuid":"u1","message":{"content":"x"}}`+"\n"+`{"type":"user","uuid":"u2"`), 0o644))
	ctx := context.Background()

	stats, err := IngestDelta(ctx, projectDir, "sess1", path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecordsKept)

	// Complete the partial line; the next ingest picks it up from the
	// committed offset.
	appendLines(t, path, `,"message":{"content":"y"}}`)
	stats2, err := IngestDelta(ctx, projectDir, "sess1", path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats2.RecordsKept)
	assert.Equal(t, stats.ToOffset, stats2.FromOffset)
}

func TestIngestTruncationResetsOffset(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	transcript := writeTranscript(t, tmp,
		`{"type":"user","uuid":"u1","message":{"content":"long first version line"}}`,
		`{"type":"user","uuid":"u2","message":{"content":"second"}}`,
	)
	ctx := context.Background()

	stats1, err := IngestDelta(ctx, projectDir, "sess1", transcript, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats1.RecordsKept)

	// Source rewritten smaller than the cursor's file_size.
	require.NoError(t, os.WriteFile(transcript,
		[]byte(`{"type":"user","uuid":"u9","message":{"content":"new"}}`+"\n"), 0o644))

	stats2, err := IngestDelta(ctx, projectDir, "sess1", transcript, nil)
	require.NoError(t, err)
	assert.Zero(t, stats2.FromOffset)
	assert.Equal(t, 1, stats2.RecordsKept)
}

func TestIngestMalformedLinesCounted(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	transcript := writeTranscript(t, tmp,
		`{"type":"user","uuid":"u1","message":{"content":"ok"}}`,
		`{not json at all`,
	)

	stats, err := IngestDelta(context.Background(), projectDir, "sess1", transcript, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecordsKept)
	assert.Equal(t, 1, stats.DroppedByType["parse_error"])
}

func TestIngestWithIndexWriter(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	transcript := writeTranscript(t, tmp,
		`{"type":"user","uuid":"u1","message":{"content":"hello"}}`,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","message":{"content":[{"type":"text","text":"hi"}]}}`,
	)

	indexPath := IndexPath(projectDir, "sess1")
	writer := func(raw []byte, offset, length uint64, parsed map[string]any) error {
		return AppendIndex(indexPath, BuildIndexRecord("sess1", offset, length, parsed))
	}

	_, err := IngestDelta(context.Background(), projectDir, "sess1", transcript, writer)
	require.NoError(t, err)

	records, err := ReadIndexTail(indexPath, 100, 1024*1024)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// T1: the indexed offsets recover the original lines byte-for-byte.
	storePath := StorePath(projectDir, "sess1")
	for _, rec := range records {
		raw, err := FetchStoreLine(storePath, rec.StoreOffset, rec.StoreLen)
		require.NoError(t, err)
		var parsed map[string]any
		require.NoError(t, json.Unmarshal(raw, &parsed))
		assert.Equal(t, rec.UUID, parsed["uuid"])
	}

	// Offsets strictly monotonic.
	assert.Less(t, records[0].StoreOffset, records[1].StoreOffset)
}

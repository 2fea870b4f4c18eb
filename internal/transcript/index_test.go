package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")

	rec := IndexRecordV1{
		V:         1,
		SessionID: "s1",
		UUID:      "uuid1",
		Type:      "user",
		TS:        "2026-01-01T00:00:00Z",
		StoreLen:  100,
	}
	require.NoError(t, AppendIndex(path, rec))

	records, err := ReadIndexTail(path, 100, 1024*1024)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "uuid1", records[0].UUID)
	assert.Equal(t, uint64(0), records[0].StoreOffset)
	assert.Equal(t, uint64(100), records[0].StoreLen)
}

func TestReadIndexTailMissingFile(t *testing.T) {
	records, err := ReadIndexTail(filepath.Join(t.TempDir(), "nope.jsonl"), 10, 1024)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadIndexTailLimitsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")
	for i := 0; i < 10; i++ {
		require.NoError(t, AppendIndex(path, IndexRecordV1{V: 1, SessionID: "s1", UUID: string(rune('a' + i)), Type: "user"}))
	}

	records, err := ReadIndexTail(path, 3, 1024*1024)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "h", records[0].UUID)
	assert.Equal(t, "j", records[2].UUID)
}

func TestFetchStoreLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.jsonl")
	line1 := `{"type":"user","uuid":"u1"}`
	line2 := `{"type":"assistant","uuid":"a1"}`
	require.NoError(t, os.WriteFile(path, []byte(line1+"\n"+line2+"\n"), 0o644))

	got1, err := FetchStoreLine(path, 0, uint64(len(line1))+1)
	require.NoError(t, err)
	assert.Equal(t, line1, string(got1))

	got2, err := FetchStoreLine(path, uint64(len(line1))+1, uint64(len(line2))+1)
	require.NoError(t, err)
	assert.Equal(t, line2, string(got2))
}

func TestBuildIndexRecordExtractsFields(t *testing.T) {
	raw := `{
		"type": "assistant",
		"uuid": "a1",
		"parentUuid": "u1",
		"timestamp": "2026-01-01T00:00:01Z",
		"cwd": "/work/repo",
		"message": {
			"content": [
				{"type": "text", "text": "hello"},
				{"type": "tool_use", "id": "tu1", "name": "Bash", "input": {"command": "ls"}},
				{"type": "tool_use", "id": "tu2", "name": "Read", "input": {"file_path": "a.go"}}
			]
		},
		"usage": {"input_tokens": 100, "cache_read_input_tokens": 20, "output_tokens": 50}
	}`
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))

	rec := BuildIndexRecord("s1", 10, 200, parsed)
	assert.Equal(t, 1, rec.V)
	assert.Equal(t, "a1", rec.UUID)
	require.NotNil(t, rec.ParentUUID)
	assert.Equal(t, "u1", *rec.ParentUUID)
	assert.Equal(t, "assistant", rec.Type)
	assert.Equal(t, "2026-01-01T00:00:01Z", rec.TS)
	require.NotNil(t, rec.Cwd)
	assert.Equal(t, "/work/repo", *rec.Cwd)
	assert.Equal(t, uint64(10), rec.StoreOffset)
	assert.Equal(t, uint64(200), rec.StoreLen)

	require.NotNil(t, rec.Assistant)
	assert.Equal(t, []string{"tu1", "tu2"}, rec.Assistant.ToolUseIDs)
	assert.Equal(t, []string{"Bash", "Read"}, rec.Assistant.ToolUseNames)
	assert.Equal(t, []string{"ls"}, rec.Assistant.BashCommands)

	require.NotNil(t, rec.Usage)
	assert.Equal(t, uint64(100), rec.Usage.InputTokens)
	assert.Equal(t, uint64(20), rec.Usage.CacheReadInputTokens)
	assert.Equal(t, uint64(50), rec.Usage.OutputTokens)
}

func TestBuildIndexRecordUserHasNoAssistantMeta(t *testing.T) {
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"type":"user","uuid":"u1","message":{"content":"hi"}}`), &parsed))

	rec := BuildIndexRecord("s1", 0, 10, parsed)
	assert.Nil(t, rec.Assistant)
	assert.Nil(t, rec.Usage)
	assert.Nil(t, rec.ParentUUID)
}

func TestCursorTruncationDetection(t *testing.T) {
	c := Cursor{Offset: 500, FileSize: 1000}
	c.DetectTruncation(900)
	assert.Zero(t, c.Offset)

	c = Cursor{Offset: 500, FileSize: 1000}
	c.DetectTruncation(1500)
	assert.Equal(t, uint64(500), c.Offset)
}

func TestCursorSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := Cursor{Offset: 123, FileSize: 456, MtimeUnix: 789, UpdatedAtUnix: 1000}
	require.NoError(t, c.Save(dir, "sess1"))

	loaded, err := LoadCursor(dir, "sess1")
	require.NoError(t, err)
	assert.Equal(t, c, loaded)

	// Missing cursor loads as zero.
	zero, err := LoadCursor(dir, "other")
	require.NoError(t, err)
	assert.Zero(t, zero.Offset)
}

func TestClassify(t *testing.T) {
	parse := func(s string) map[string]any {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(s), &m))
		return m
	}

	assert.Equal(t, ActionKeep, Classify(parse(`{"type":"user","message":{"content":"x"}}`)))
	assert.Equal(t, ActionKeep, Classify(parse(`{"type":"assistant","message":{"content":[]}}`)))
	assert.Equal(t, ActionProgress, Classify(parse(`{"type":"progress","toolUseID":"t1"}`)))
	assert.Equal(t, ActionDrop, Classify(parse(`{"type":"progress"}`)))
	assert.Equal(t, ActionDrop, Classify(parse(`{"type":"system","subtype":"ping"}`)))
	assert.Equal(t, ActionDrop, Classify(parse(`{"no_type":true}`)))
}

package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// IndexRecordV1 is one line of index/<session>.jsonl: metadata plus the
// byte position of the original record in the verbatim store.
type IndexRecordV1 struct {
	V           int            `json:"v"`
	SessionID   string         `json:"session_id"`
	UUID        string         `json:"uuid"`
	ParentUUID  *string        `json:"parent_uuid"`
	Type        string         `json:"type"`
	TS          string         `json:"ts"`
	GitBranch   *string        `json:"git_branch"`
	Cwd         *string        `json:"cwd"`
	StoreOffset uint64         `json:"store_offset"`
	StoreLen    uint64         `json:"store_len"`
	Assistant   *AssistantMeta `json:"assistant"`
	Usage       *UsageMeta     `json:"usage"`
}

// AssistantMeta collects tool-use metadata from an assistant record.
type AssistantMeta struct {
	ToolUseIDs   []string `json:"tool_use_ids"`
	ToolUseNames []string `json:"tool_use_names"`
	BashCommands []string `json:"bash_commands"`
}

// UsageMeta carries token usage from a record.
type UsageMeta struct {
	InputTokens          uint64 `json:"input_tokens"`
	CacheReadInputTokens uint64 `json:"cache_read_input_tokens"`
	OutputTokens         uint64 `json:"output_tokens"`
}

// IndexPath returns index/<session>.jsonl under the project dir.
func IndexPath(projectDir, sessionID string) string {
	return filepath.Join(projectDir, "index", sessionID+".jsonl")
}

// StorePath returns transcripts/<session>.jsonl under the project dir.
func StorePath(projectDir, sessionID string) string {
	return filepath.Join(projectDir, "transcripts", sessionID+".jsonl")
}

// AppendIndex appends one record to the index file.
func AppendIndex(indexPath string, record IndexRecordV1) error {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling index record: %w", err)
	}
	f, err := os.OpenFile(indexPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302,G304 - host-local state
	if err != nil {
		return fmt.Errorf("opening index for append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending index record: %w", err)
	}
	return nil
}

// ReadIndexTail returns up to maxLines records from the end of the index,
// reading at most maxBytes. A partial first line from a mid-file start is
// dropped; unparsable lines are skipped.
func ReadIndexTail(indexPath string, maxLines int, maxBytes uint64) ([]IndexRecordV1, error) {
	f, err := os.Open(indexPath) // #nosec G304 - controlled path from state layout
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}
	fileSize := uint64(info.Size())
	readFrom := uint64(0)
	if fileSize > maxBytes {
		readFrom = fileSize - maxBytes
	}
	if _, err := f.Seek(int64(readFrom), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking index: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	if readFrom > 0 {
		// Drop the partial first line.
		if pos := bytes.IndexByte(data, '\n'); pos >= 0 {
			data = data[pos+1:]
		} else {
			data = nil
		}
	}

	lines := bytes.Split(data, []byte{'\n'})
	var nonEmpty [][]byte
	for _, line := range lines {
		if len(line) > 0 {
			nonEmpty = append(nonEmpty, line)
		}
	}
	start := 0
	if len(nonEmpty) > maxLines {
		start = len(nonEmpty) - maxLines
	}

	var records []IndexRecordV1
	for _, line := range nonEmpty[start:] {
		var rec IndexRecordV1
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// FetchStoreLine reads length bytes at offset from the verbatim store and
// strips a single trailing newline: the original JSONL line, exactly.
func FetchStoreLine(storePath string, offset, length uint64) ([]byte, error) {
	f, err := os.Open(storePath) // #nosec G304 - controlled path from state layout
	if err != nil {
		return nil, fmt.Errorf("opening transcript store: %w", err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("reading store line at %d: %w", offset, err)
	}
	if n := len(buf); n > 0 && buf[n-1] == '\n' {
		buf = buf[:n-1]
	}
	return buf, nil
}

// CountStoreLines counts non-empty lines in the verbatim store.
func CountStoreLines(storePath string) (int, error) {
	f, err := os.Open(storePath) // #nosec G304 - controlled path from state layout
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}

// BuildIndexRecord derives an IndexRecordV1 from a parsed transcript
// record and its store position.
func BuildIndexRecord(sessionID string, storeOffset, storeLen uint64, parsed map[string]any) IndexRecordV1 {
	rec := IndexRecordV1{
		V:           1,
		SessionID:   sessionID,
		StoreOffset: storeOffset,
		StoreLen:    storeLen,
		Type:        RecordType(parsed),
	}
	if uuid, ok := parsed["uuid"].(string); ok {
		rec.UUID = uuid
	}
	if parent, ok := parsed["parentUuid"].(string); ok && parent != "" {
		rec.ParentUUID = &parent
	}
	if ts, ok := parsed["timestamp"].(string); ok && ts != "" {
		rec.TS = ts
	} else if ts, ok := parsed["ts"].(string); ok {
		rec.TS = ts
	}
	if cwd, ok := parsed["cwd"].(string); ok && cwd != "" {
		rec.Cwd = &cwd
	}
	if rec.Type == "assistant" {
		meta := extractAssistantMeta(parsed)
		rec.Assistant = &meta
	}
	if usage, ok := parsed["usage"].(map[string]any); ok {
		rec.Usage = &UsageMeta{
			InputTokens:          uintFrom(usage["input_tokens"]),
			CacheReadInputTokens: uintFrom(usage["cache_read_input_tokens"]),
			OutputTokens:         uintFrom(usage["output_tokens"]),
		}
	}
	return rec
}

func extractAssistantMeta(parsed map[string]any) AssistantMeta {
	meta := AssistantMeta{
		ToolUseIDs:   []string{},
		ToolUseNames: []string{},
		BashCommands: []string{},
	}
	message, _ := parsed["message"].(map[string]any)
	content, _ := message["content"].([]any)
	for _, block := range content {
		obj, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if blockType, _ := obj["type"].(string); blockType != "tool_use" {
			continue
		}
		if id, ok := obj["id"].(string); ok {
			meta.ToolUseIDs = append(meta.ToolUseIDs, id)
		}
		name, _ := obj["name"].(string)
		if name == "" {
			continue
		}
		meta.ToolUseNames = append(meta.ToolUseNames, name)
		if name == "Bash" || name == "bash" {
			if input, ok := obj["input"].(map[string]any); ok {
				if cmd, ok := input["command"].(string); ok {
					meta.BashCommands = append(meta.BashCommands, cmd)
				}
			}
		}
	}
	return meta
}

func uintFrom(v any) uint64 {
	switch x := v.(type) {
	case float64:
		if x < 0 {
			return 0
		}
		return uint64(x)
	case json.Number:
		n, _ := x.Int64()
		if n < 0 {
			return 0
		}
		return uint64(n)
	}
	return 0
}

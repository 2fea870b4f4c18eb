package transcript

// Action is the filter decision for one transcript record.
type Action int

const (
	// ActionDrop discards the record (system meta, unknown types).
	ActionDrop Action = iota
	// ActionKeep stores the record verbatim and indexes it.
	ActionKeep
	// ActionProgress updates the progress_last map only.
	ActionProgress
)

// Classify applies the filter policy: user and assistant records are kept,
// streaming progress updates carrying a tool use id mutate progress state,
// and everything else drops. This is the only transformation the pipeline
// performs; content is never rewritten.
func Classify(parsed map[string]any) Action {
	recordType, _ := parsed["type"].(string)
	switch recordType {
	case "user", "assistant":
		return ActionKeep
	case "progress":
		if toolUseID(parsed) != "" {
			return ActionProgress
		}
		return ActionDrop
	default:
		return ActionDrop
	}
}

// toolUseID extracts the tool use id from a progress record, accepting the
// field spellings the external producers use.
func toolUseID(parsed map[string]any) string {
	for _, key := range []string{"toolUseID", "tool_use_id", "toolUseId"} {
		if id, ok := parsed[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

// UpdateProgressLast overwrites the last-seen progress payload for the
// record's tool use id. Idempotent per id.
func UpdateProgressLast(progress map[string]any, parsed map[string]any) {
	if id := toolUseID(parsed); id != "" {
		progress[id] = parsed
	}
}

// RecordType returns the record's type field, or "unknown".
func RecordType(parsed map[string]any) string {
	if t, ok := parsed["type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

// Package pack reconstructs user/assistant turns from the transcript index
// and renders them into a deterministic memory pack.
package pack

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fagemx/edda/internal/transcript"
)

// Defaults, each overridable by environment.
const (
	DefaultIndexTailLines    = 5000
	DefaultIndexTailMaxBytes = 8 * 1024 * 1024
	DefaultPackTurns         = 12
	DefaultPackBudgetChars   = 12000

	// maxChainDepth bounds the parent-uuid walk against cycles in
	// corrupted indexes.
	maxChainDepth = 50
)

// ToolUse is one tool invocation attached to a turn.
type ToolUse struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Command     string `json:"command,omitempty"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
}

// Turn pairs a root user prompt with its final assistant response and the
// tool uses in between.
type Turn struct {
	UserUUID       string    `json:"user_uuid"`
	AssistantUUID  string    `json:"assistant_uuid"`
	UserText       string    `json:"user_text"`
	AssistantTexts []string  `json:"assistant_texts"`
	ToolUses       []ToolUse `json:"tool_uses"`
}

// Metadata labels a rendered pack.
type Metadata struct {
	ProjectID string
	SessionID string
	GitBranch string
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// BuildTurns walks the index tail newest-first, resolving each assistant
// record to its root user prompt via the parent-uuid chain. Intermediate
// tool_result user records and intermediate assistants are skipped; the
// intermediates' tool uses are collected in chronological order. Turns are
// deduplicated by user uuid and capped at maxTurns.
func BuildTurns(projectDir, sessionID string, maxTurns int) ([]Turn, error) {
	tailLines := envInt("EDDA_INDEX_TAIL_LINES", DefaultIndexTailLines)
	tailBytes := uint64(envInt("EDDA_INDEX_TAIL_MAX_BYTES", DefaultIndexTailMaxBytes))
	if maxTurns <= 0 {
		maxTurns = envInt("EDDA_PACK_TURNS", DefaultPackTurns)
	}

	records, err := transcript.ReadIndexTail(transcript.IndexPath(projectDir, sessionID), tailLines, tailBytes)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	byUUID := map[string]*transcript.IndexRecordV1{}
	for i := range records {
		byUUID[records[i].UUID] = &records[i]
	}
	var assistants []*transcript.IndexRecordV1
	for i := range records {
		if records[i].Type == "assistant" {
			assistants = append(assistants, &records[i])
		}
	}

	storePath := transcript.StorePath(projectDir, sessionID)
	var turns []Turn
	seenUsers := map[string]bool{}

	// Newest assistant first.
	for i := len(assistants) - 1; i >= 0 && len(turns) < maxTurns; i-- {
		leaf := assistants[i]

		var chainToolUses []ToolUse
		userUUID, userText := "", ""
		parent := leaf.ParentUUID
		for depth := 0; parent != nil && depth < maxChainDepth; depth++ {
			rec, ok := byUUID[*parent]
			if !ok {
				break
			}
			switch rec.Type {
			case "user":
				if text := userTextOf(storePath, rec); text != "" {
					userUUID = rec.UUID
					userText = text
					parent = nil
					continue
				}
				// tool_result record: keep walking up.
				parent = rec.ParentUUID
			case "assistant":
				// Intermediate assistant: collect its tool uses.
				if doc := fetchJSON(storePath, rec); doc != nil {
					_, uses := parseAssistantContent(doc)
					chainToolUses = append(chainToolUses, uses...)
				}
				parent = rec.ParentUUID
			default:
				parent = nil
			}
		}
		if userUUID == "" || userText == "" {
			continue
		}
		if seenUsers[userUUID] {
			continue
		}
		seenUsers[userUUID] = true

		doc := fetchJSON(storePath, leaf)
		if doc == nil {
			continue
		}
		texts, finalUses := parseAssistantContent(doc)

		// Chain uses were collected walking up; reverse to chronological
		// order before appending the leaf's own uses.
		reverseToolUses(chainToolUses)
		chainToolUses = append(chainToolUses, finalUses...)

		turns = append(turns, Turn{
			UserUUID:       userUUID,
			AssistantUUID:  leaf.UUID,
			UserText:       userText,
			AssistantTexts: texts,
			ToolUses:       chainToolUses,
		})
	}
	return turns, nil
}

func fetchJSON(storePath string, rec *transcript.IndexRecordV1) map[string]any {
	raw, err := transcript.FetchStoreLine(storePath, rec.StoreOffset, rec.StoreLen)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

// userTextOf returns the prompt text for a real user record, or "" for
// tool_result carriers and unreadable records.
func userTextOf(storePath string, rec *transcript.IndexRecordV1) string {
	doc := fetchJSON(storePath, rec)
	if doc == nil {
		return ""
	}
	return ExtractUserText(doc)
}

// ExtractUserText pulls the prompt text from a user record: string content
// directly, or joined text blocks; tool_result arrays yield "".
func ExtractUserText(doc map[string]any) string {
	message, _ := doc["message"].(map[string]any)
	content, ok := message["content"]
	if !ok {
		return ""
	}
	if s, ok := content.(string); ok {
		return s
	}
	arr, ok := content.([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, block := range arr {
		obj, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch obj["type"] {
		case "tool_result":
			return ""
		case "text":
			if text, ok := obj["text"].(string); ok {
				texts = append(texts, text)
			}
		}
	}
	return strings.Join(texts, " ")
}

func parseAssistantContent(doc map[string]any) ([]string, []ToolUse) {
	message, _ := doc["message"].(map[string]any)
	content := message["content"]

	if s, ok := content.(string); ok {
		return []string{s}, nil
	}
	arr, ok := content.([]any)
	if !ok {
		return nil, nil
	}

	var texts []string
	var uses []ToolUse
	for _, block := range arr {
		obj, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch obj["type"] {
		case "text":
			if text, ok := obj["text"].(string); ok {
				texts = append(texts, text)
			}
		case "tool_use":
			use := ToolUse{}
			use.ID, _ = obj["id"].(string)
			use.Name, _ = obj["name"].(string)
			if input, ok := obj["input"].(map[string]any); ok {
				use.Command, _ = input["command"].(string)
				use.Description, _ = input["description"].(string)
				use.FilePath, _ = input["file_path"].(string)
			}
			uses = append(uses, use)
		}
	}
	return texts, uses
}

func reverseToolUses(uses []ToolUse) {
	for i, j := 0, len(uses)-1; i < j; i, j = i+1, j-1 {
		uses[i], uses[j] = uses[j], uses[i]
	}
}

// Render produces the markdown memory pack, newest turn first, truncated to
// the character budget (EDDA_PACK_BUDGET_CHARS when budgetChars is zero).
func Render(turns []Turn, meta Metadata, budgetChars int) string {
	if budgetChars <= 0 {
		budgetChars = envInt("EDDA_PACK_BUDGET_CHARS", DefaultPackBudgetChars)
	}

	var b strings.Builder
	b.WriteString("# edda memory pack (hot)\n\n")
	fmt.Fprintf(&b, "- project_id: %s\n", meta.ProjectID)
	fmt.Fprintf(&b, "- session_id: %s\n", meta.SessionID)
	fmt.Fprintf(&b, "- git_branch: %s\n", meta.GitBranch)
	fmt.Fprintf(&b, "- turns: %d\n\n", len(turns))
	b.WriteString("## Recent Turns (deterministic)\n\n")

	for i, turn := range turns {
		var section strings.Builder
		fmt.Fprintf(&section, "### Turn %d (newest first)\n", i+1)
		fmt.Fprintf(&section, "- User: %s\n", truncate(turn.UserText, 200))
		for _, tu := range turn.ToolUses {
			line := "- Tool: " + tu.Name
			if tu.Command != "" {
				line += fmt.Sprintf(" `%s`", truncate(tu.Command, 80))
			}
			if tu.Description != "" {
				line += fmt.Sprintf(" (%s)", truncate(tu.Description, 60))
			}
			if tu.FilePath != "" {
				line += " " + tu.FilePath
			}
			section.WriteString(line + "\n")
		}
		for _, text := range turn.AssistantTexts {
			fmt.Fprintf(&section, "- Assistant: %s\n", truncate(text, 400))
		}
		section.WriteString("\n")

		if b.Len()+section.Len() > budgetChars {
			break
		}
		b.WriteString(section.String())
	}
	return b.String()
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

package search

import (
	"context"
	"fmt"
	"strings"
)

// Hit is one search result.
type Hit struct {
	DocID     string
	DocType   string
	EventType string
	Branch    string
	TS        string
	SessionID string
	Title     string
	Snippet   string
}

// Query filters and bounds a search.
type Query struct {
	Text      string
	DocType   string // "event", "turn", or "" for both
	Branch    string
	SessionID string
	Limit     int
}

// Search runs a full-text query ranked by bm25. The query text uses FTS5
// syntax; plain words are AND-matched.
func (ix *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	sqlQuery := `
		SELECT m.doc_id, m.doc_type, COALESCE(m.event_type, ''), COALESCE(m.branch, ''),
			COALESCE(m.ts, ''), COALESCE(m.session_id, ''), d.title,
			snippet(docs, 1, '[', ']', '…', 12)
		FROM docs d
		JOIN docs_meta m ON m.doc_rowid = d.rowid
		WHERE docs MATCH ?`
	args := []any{q.Text}
	if q.DocType != "" {
		sqlQuery += ` AND m.doc_type = ?`
		args = append(args, q.DocType)
	}
	if q.Branch != "" {
		sqlQuery += ` AND m.branch = ?`
		args = append(args, q.Branch)
	}
	if q.SessionID != "" {
		sqlQuery += ` AND m.session_id = ?`
		args = append(args, q.SessionID)
	}
	sqlQuery += ` ORDER BY bm25(docs) LIMIT ?`
	args = append(args, limit)

	rows, err := ix.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("running search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.DocID, &h.DocType, &h.EventType, &h.Branch,
			&h.TS, &h.SessionID, &h.Title, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// TurnPosition is the stored byte position of a turn's records, enabling
// show-style retrieval from the verbatim store.
type TurnPosition struct {
	TurnID          string
	SessionID       string
	UserUUID        string
	AssistantUUID   string
	UserOffset      uint64
	UserLen         uint64
	AssistantOffset uint64
	AssistantLen    uint64
}

// TurnPosition returns the stored offsets for a turn id.
func (ix *Index) TurnPosition(ctx context.Context, turnID string) (*TurnPosition, error) {
	var pos TurnPosition
	err := ix.db.QueryRowContext(ctx, `
		SELECT turn_id, session_id, user_uuid, assistant_uuid,
			user_offset, user_len, assistant_offset, assistant_len
		FROM turns_meta WHERE turn_id = ?
	`, turnID).Scan(&pos.TurnID, &pos.SessionID, &pos.UserUUID, &pos.AssistantUUID,
		&pos.UserOffset, &pos.UserLen, &pos.AssistantOffset, &pos.AssistantLen)
	if err != nil {
		return nil, fmt.Errorf("looking up turn %s: %w", turnID, err)
	}
	return &pos, nil
}

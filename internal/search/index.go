// Package search maintains the full-text index over ledger events and
// transcript turns, stored as SQLite FTS5 under the project state dir.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embedded sqlite build (includes FTS5)

	"github.com/fagemx/edda/internal/pack"
	"github.com/fagemx/edda/internal/transcript"
	"github.com/fagemx/edda/internal/types"
)

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS docs USING fts5(title, body, tags, tokens);

CREATE TABLE IF NOT EXISTS docs_meta (
	doc_rowid  INTEGER PRIMARY KEY,
	doc_id     TEXT NOT NULL,
	doc_type   TEXT NOT NULL,
	event_type TEXT,
	branch     TEXT,
	ts         TEXT,
	session_id TEXT,
	project_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_docs_meta_type ON docs_meta(project_id, doc_type);

CREATE TABLE IF NOT EXISTS turns_meta (
	turn_id          TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	user_uuid        TEXT NOT NULL,
	assistant_uuid   TEXT NOT NULL,
	user_offset      INTEGER,
	user_len         INTEGER,
	assistant_offset INTEGER,
	assistant_len    INTEGER
);
`

// Index is the FTS database handle.
type Index struct {
	db *sql.DB
}

// DefaultPath returns search.db under the project dir.
func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, "search.db")
}

// Open opens (creating if needed) the search database.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", "file:"+path+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening search.db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating search schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the database.
func (ix *Index) Close() error { return ix.db.Close() }

// IndexEvents re-indexes all ledger events for a project. Idempotent: all
// prior event docs for the project are purged before the bulk insert.
func (ix *Index) IndexEvents(ctx context.Context, projectID string, events []types.Event) (int, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reindex: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM docs WHERE rowid IN
			(SELECT doc_rowid FROM docs_meta WHERE project_id = ? AND doc_type = 'event')
	`, projectID)
	if err != nil {
		return 0, fmt.Errorf("purging event docs: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM docs_meta WHERE project_id = ? AND doc_type = 'event'`, projectID)
	if err != nil {
		return 0, fmt.Errorf("purging event doc metadata: %w", err)
	}

	count := 0
	for i := range events {
		e := &events[i]
		title, body := eventTitleBody(e)
		tags := strings.Join(e.PayloadStrings("tags"), " ")
		if err := insertDoc(ctx, tx, docRow{
			docID:     e.EventID,
			docType:   "event",
			eventType: e.EventType,
			branch:    e.Branch,
			ts:        e.TS,
			projectID: projectID,
			title:     title,
			body:      body,
			tags:      tags,
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, tx.Commit()
}

// IndexSession indexes a session's reconstructed turns. Turns already in
// turns_meta are skipped, so repeated indexing of a growing session only
// adds new turns.
func (ix *Index) IndexSession(ctx context.Context, projectID, projectDir, sessionID string) (int, error) {
	// Index every reconstructable turn, not just the pack window.
	turns, err := pack.BuildTurns(projectDir, sessionID, 1<<30)
	if err != nil {
		return 0, err
	}
	if len(turns) == 0 {
		return 0, nil
	}

	// Byte offsets per uuid for show-style retrieval.
	records, err := transcript.ReadIndexTail(transcript.IndexPath(projectDir, sessionID),
		pack.DefaultIndexTailLines, pack.DefaultIndexTailMaxBytes)
	if err != nil {
		return 0, err
	}
	offsets := map[string][2]uint64{}
	for _, rec := range records {
		offsets[rec.UUID] = [2]uint64{rec.StoreOffset, rec.StoreLen}
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin session index: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	count := 0
	for _, turn := range turns {
		turnID := turn.UserUUID + ":" + turn.AssistantUUID
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM turns_meta WHERE turn_id = ?`, turnID).Scan(&exists)
		if err != nil {
			return count, fmt.Errorf("checking turn dedup: %w", err)
		}
		if exists > 0 {
			continue
		}

		body := turn.UserText + "\n" + strings.Join(turn.AssistantTexts, "\n")
		var tokens []string
		for _, tu := range turn.ToolUses {
			tokens = append(tokens, tu.Name)
			if tu.Command != "" {
				tokens = append(tokens, tu.Command)
			}
			if tu.FilePath != "" {
				tokens = append(tokens, tu.FilePath)
			}
		}
		if err := insertDoc(ctx, tx, docRow{
			docID:     turnID,
			docType:   "turn",
			sessionID: sessionID,
			projectID: projectID,
			body:      body,
			tokens:    strings.Join(tokens, " "),
		}); err != nil {
			return count, err
		}

		userPos := offsets[turn.UserUUID]
		asstPos := offsets[turn.AssistantUUID]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO turns_meta (turn_id, session_id, user_uuid, assistant_uuid,
				user_offset, user_len, assistant_offset, assistant_len)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, turnID, sessionID, turn.UserUUID, turn.AssistantUUID,
			userPos[0], userPos[1], asstPos[0], asstPos[1])
		if err != nil {
			return count, fmt.Errorf("recording turn metadata: %w", err)
		}
		count++
	}
	return count, tx.Commit()
}

type docRow struct {
	docID     string
	docType   string
	eventType string
	branch    string
	ts        string
	sessionID string
	projectID string
	title     string
	body      string
	tags      string
	tokens    string
}

func insertDoc(ctx context.Context, tx *sql.Tx, row docRow) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO docs (title, body, tags, tokens) VALUES (?, ?, ?, ?)`,
		row.title, row.body, row.tags, row.tokens)
	if err != nil {
		return fmt.Errorf("inserting doc: %w", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading doc rowid: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO docs_meta (doc_rowid, doc_id, doc_type, event_type, branch, ts, session_id, project_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rowid, row.docID, row.docType, row.eventType, row.branch, row.ts, row.sessionID, row.projectID)
	if err != nil {
		return fmt.Errorf("inserting doc metadata: %w", err)
	}
	return nil
}

// eventTitleBody extracts the searchable text from an event.
func eventTitleBody(e *types.Event) (string, string) {
	if d, ok := types.DecisionOf(e); ok {
		body := d.Value
		if d.Reason != "" {
			body = d.Value + " — " + d.Reason
		}
		return d.Key, body
	}
	if e.EventType == types.TypeCommit {
		return e.PayloadString("title"), e.PayloadString("contribution")
	}
	return "", e.PayloadString("text")
}

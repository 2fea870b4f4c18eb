// Package sqlite implements the SQLite ledger backend over
// .edda/ledger.db with a materialized decision projection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embedded sqlite build

	"github.com/fagemx/edda/internal/blob"
	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/telemetry"
	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/workspace"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	append_seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id       TEXT NOT NULL UNIQUE,
	ts             TEXT NOT NULL,
	type           TEXT NOT NULL,
	branch         TEXT NOT NULL,
	parent_hash    TEXT,
	hash           TEXT NOT NULL,
	payload_json   TEXT NOT NULL,
	refs_json      TEXT NOT NULL,
	schema_version INTEGER NOT NULL DEFAULT 0,
	family         TEXT,
	level          TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_branch ON events(branch, append_seq);

CREATE TABLE IF NOT EXISTS decisions (
	event_id      TEXT PRIMARY KEY,
	key           TEXT NOT NULL,
	branch        TEXT NOT NULL,
	value         TEXT NOT NULL,
	reason        TEXT,
	ts            TEXT NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	superseded_by TEXT,
	domain        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_branch_key ON decisions(branch, key);

CREATE TABLE IF NOT EXISTS refs (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tombstones (
	blob_hash  TEXT PRIMARY KEY,
	last_class TEXT,
	size_bytes INTEGER,
	reason     TEXT,
	deleted_at TEXT
);
`

// Store is the SQLite-backed ledger.
type Store struct {
	db    *sql.DB
	paths workspace.Paths
}

func connString(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"
}

// Open opens an existing ledger.db.
func Open(paths workspace.Paths) (*Store, error) {
	return open(paths)
}

// OpenOrCreate opens ledger.db, creating it and its schema if absent.
// Used by init and by the JSONL migration.
func OpenOrCreate(paths workspace.Paths) (*Store, error) {
	return open(paths)
}

func open(paths workspace.Paths) (*Store, error) {
	db, err := sql.Open("sqlite3", connString(paths.LedgerDB))
	if err != nil {
		return nil, fmt.Errorf("opening ledger.db: %w", err)
	}
	// The workspace lock serializes writers; a single connection avoids
	// SQLITE_BUSY between pooled connections of one process.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Store{db: db, paths: paths}, nil
}

// Backend returns "sqlite".
func (s *Store) Backend() string { return storage.BackendSQLite }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Paths exposes the workspace layout (used by the view writers).
func (s *Store) Paths() workspace.Paths { return s.paths }

// AppendEvent validates and appends one event. The insert and the decision
// projection update share one transaction; failure anywhere leaves the
// store unchanged.
func (s *Store) AppendEvent(ctx context.Context, e *types.Event) error {
	lock, err := s.paths.AcquireLock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	tip, err := s.TipHash(ctx, e.Branch)
	if err != nil {
		return err
	}
	if err := storage.ValidateChain(e, tip); err != nil {
		return err
	}
	if err := storage.VerifyHash(e); err != nil {
		return err
	}
	if err := s.insertEvent(ctx, e); err != nil {
		return err
	}
	telemetry.EventAppended(ctx, storage.BackendSQLite, e.EventType)
	return nil
}

// ReplayEvent inserts an event without chain or hash validation. Only the
// JSONL migration uses it: legacy records predate the current hash scheme,
// and the migration verifies counts, ids, hashes, and chain afterwards.
func (s *Store) ReplayEvent(ctx context.Context, e *types.Event) error {
	return s.insertEvent(ctx, e)
}

func (s *Store) insertEvent(ctx context.Context, e *types.Event) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	refsJSON, err := json.Marshal(e.Refs)
	if err != nil {
		return fmt.Errorf("marshaling refs: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin append transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var parent any
	if e.ParentHash != nil {
		parent = *e.ParentHash
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (event_id, ts, type, branch, parent_hash, hash,
			payload_json, refs_json, schema_version, family, level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventID, e.TS, e.EventType, e.Branch, parent, e.Hash,
		string(payloadJSON), string(refsJSON), e.SchemaVersion,
		nullable(e.EventFamily), nullable(e.EventLevel))
	if err != nil {
		return wrapDBError("insert event", err)
	}

	if d, ok := types.DecisionOf(e); ok {
		_, err = tx.ExecContext(ctx, `
			UPDATE decisions SET is_active = 0, superseded_by = ?
			WHERE branch = ? AND key = ? AND is_active = 1
		`, e.EventID, e.Branch, d.Key)
		if err != nil {
			return wrapDBError("supersede prior decisions", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO decisions (event_id, key, branch, value, reason, ts, is_active, domain)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		`, e.EventID, d.Key, e.Branch, d.Value, d.Reason, e.TS, types.DomainOf(d.Key))
		if err != nil {
			return wrapDBError("insert decision", err)
		}
	}

	return wrapDBError("commit append", tx.Commit())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IterEvents returns all events ordered by append sequence.
func (s *Store) IterEvents(ctx context.Context) ([]types.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, ts, type, branch, parent_hash, hash,
			payload_json, refs_json, schema_version, family, level
		FROM events ORDER BY append_seq
	`)
	if err != nil {
		return nil, wrapDBError("query events", err)
	}
	defer func() { _ = rows.Close() }()

	var events []types.Event
	for rows.Next() {
		var (
			e           types.Event
			parent      sql.NullString
			payloadJSON string
			refsJSON    string
			family      sql.NullString
			level       sql.NullString
		)
		if err := rows.Scan(&e.EventID, &e.TS, &e.EventType, &e.Branch, &parent, &e.Hash,
			&payloadJSON, &refsJSON, &e.SchemaVersion, &family, &level); err != nil {
			return nil, wrapDBError("scan event row", err)
		}
		if parent.Valid {
			p := parent.String
			e.ParentHash = &p
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, fmt.Errorf("parsing payload for %s: %w", e.EventID, err)
		}
		if err := json.Unmarshal([]byte(refsJSON), &e.Refs); err != nil {
			return nil, fmt.Errorf("parsing refs for %s: %w", e.EventID, err)
		}
		e.EventFamily = family.String
		e.EventLevel = level.String
		events = append(events, e)
	}
	return events, wrapDBError("iterate event rows", rows.Err())
}

// HeadBranch returns the current branch name, defaulting to "main".
func (s *Store) HeadBranch(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM refs WHERE name = 'HEAD'`).Scan(&value)
	if err == sql.ErrNoRows {
		return "main", nil
	}
	return value, wrapDBError("read HEAD", err)
}

// SetHeadBranch stores the current branch name.
func (s *Store) SetHeadBranch(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refs (name, value) VALUES ('HEAD', ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`, name)
	return wrapDBError("set HEAD", err)
}

// BranchesJSON returns the per-branch summary document.
func (s *Store) BranchesJSON(ctx context.Context) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM refs WHERE name = 'branches_json'`).Scan(&value)
	if err == sql.ErrNoRows {
		return json.RawMessage(`{"branches":{}}`), nil
	}
	if err != nil {
		return nil, wrapDBError("read branches_json", err)
	}
	return json.RawMessage(value), nil
}

// SetBranchesJSON stores the per-branch summary document.
func (s *Store) SetBranchesJSON(ctx context.Context, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refs (name, value) VALUES ('branches_json', ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`, string(value))
	return wrapDBError("set branches_json", err)
}

// LastEventHash returns the hash of the most recent event, or "".
func (s *Store) LastEventHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM events ORDER BY append_seq DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, wrapDBError("read last event hash", err)
}

// TipHash returns the hash of the last event on a branch, or "".
func (s *Store) TipHash(ctx context.Context, branch string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM events WHERE branch = ? ORDER BY append_seq DESC LIMIT 1`,
		branch).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, wrapDBError("read branch tip", err)
}

// RecordTombstone mirrors a blob tombstone into the tombstones table.
func (s *Store) RecordTombstone(ctx context.Context, t blob.Tombstone) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tombstones (blob_hash, last_class, size_bytes, reason, deleted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (blob_hash) DO UPDATE SET
			last_class = excluded.last_class,
			size_bytes = excluded.size_bytes,
			reason     = excluded.reason,
			deleted_at = excluded.deleted_at
	`, t.BlobHash, t.LastKnownClass, t.SizeBytes, t.Reason, t.DeletedAt)
	return wrapDBError("record tombstone", err)
}

var (
	_ storage.Ledger            = (*Store)(nil)
	_ storage.TombstoneRecorder = (*Store)(nil)
)

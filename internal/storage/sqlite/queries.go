package sqlite

import (
	"context"
	"strings"

	"github.com/fagemx/edda/internal/types"
)

const decisionColumns = `event_id, key, branch, value, COALESCE(reason, ''), ts,
	is_active, COALESCE(superseded_by, ''), domain`

// ActiveDecisions queries active rows with optional exact-domain and
// case-insensitive keyword filters over key, value, and reason.
func (s *Store) ActiveDecisions(ctx context.Context, domain, keyword string) ([]types.DecisionRow, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE is_active = 1`
	var args []any
	if domain != "" {
		query += ` AND domain = ?`
		args = append(args, domain)
	}
	if keyword != "" {
		query += ` AND (LOWER(key) LIKE ? OR LOWER(value) LIKE ? OR LOWER(COALESCE(reason, '')) LIKE ?)`
		pattern := "%" + strings.ToLower(keyword) + "%"
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY rowid`
	return s.queryDecisions(ctx, query, args...)
}

// DecisionTimeline returns all rows for a key, newest first, superseded
// rows included.
func (s *Store) DecisionTimeline(ctx context.Context, key string) ([]types.DecisionRow, error) {
	return s.queryDecisions(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE key = ? ORDER BY rowid DESC`, key)
}

// DomainTimeline returns all rows in a domain, newest first.
func (s *Store) DomainTimeline(ctx context.Context, domain string) ([]types.DecisionRow, error) {
	return s.queryDecisions(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE domain = ? ORDER BY rowid DESC`, domain)
}

// ListDomains returns the sorted distinct decision domains.
func (s *Store) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT domain FROM decisions ORDER BY domain`)
	if err != nil {
		return nil, wrapDBError("query domains", err)
	}
	defer func() { _ = rows.Close() }()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, wrapDBError("scan domain row", err)
		}
		domains = append(domains, d)
	}
	return domains, wrapDBError("iterate domain rows", rows.Err())
}

func (s *Store) queryDecisions(ctx context.Context, query string, args ...any) ([]types.DecisionRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query decisions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.DecisionRow
	for rows.Next() {
		var (
			r        types.DecisionRow
			isActive int
		)
		if err := rows.Scan(&r.EventID, &r.Key, &r.Branch, &r.Value, &r.Reason, &r.TS,
			&isActive, &r.SupersededBy, &r.Domain); err != nil {
			return nil, wrapDBError("scan decision row", err)
		}
		r.IsActive = isActive != 0
		out = append(out, r)
	}
	return out, wrapDBError("iterate decision rows", rows.Err())
}

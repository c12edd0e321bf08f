package storage

import (
	"database/sql"
	"strings"
)

// maxQueryLength bounds sanitized search input.
const maxQueryLength = 200

// matchNothingSentinel is returned by SanitizeQuery for input that
// sanitizes to nothing. Search recognizes it and returns zero results
// before touching the store, so an empty query never becomes "match
// everything".
const matchNothingSentinel = "\x00skb:match-nothing\x00"

// ftsOperatorTokens are bare words FTS5 would interpret as operators.
var ftsOperatorTokens = map[string]bool{
	"AND":  true,
	"OR":   true,
	"NOT":  true,
	"NEAR": true,
}

// SanitizeQuery strips FTS5 operator syntax from raw user input:
// quoting, boolean operators, wildcard/prefix markers, parenthesis
// grouping, and field-qualifier punctuation. The result is truncated to
// 200 characters. Input that sanitizes to empty becomes the
// match-nothing sentinel.
func SanitizeQuery(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '*', '(', ')', ':', '^', '-', '+', '{', '}', '[', ']', '<', '>', '=', '~', '\\':
			return ' '
		}
		return r
	}, raw)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if ftsOperatorTokens[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}

	sanitized := strings.Join(tokens, " ")
	if runes := []rune(sanitized); len(runes) > maxQueryLength {
		sanitized = string(runes[:maxQueryLength])
	}
	sanitized = strings.TrimSpace(sanitized)

	if sanitized == "" {
		return matchNothingSentinel
	}
	return sanitized
}

// IsMatchNothing reports whether a sanitized query is the sentinel.
func IsMatchNothing(sanitized string) bool {
	return sanitized == matchNothingSentinel
}

// MatchExpression quotes each sanitized token so nothing that survived
// sanitization is interpreted as FTS5 syntax. Tokens combine with
// implicit AND.
func MatchExpression(sanitized string) string {
	tokens := strings.Fields(sanitized)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(tok, `"`, "")+`"`)
	}
	return strings.Join(quoted, " ")
}

// reindexSessionTx rebuilds exactly the full-text row for one session
// from its metadata and any cached analysis. Runs inside the same
// transaction as the originating metadata write, so a committed change
// is visible to the very next search.
func (db *DB) reindexSessionTx(tx *sql.Tx, sessionID string) error {
	if _, err := tx.Exec("DELETE FROM sessions_fts WHERE session_id = ?", sessionID); err != nil {
		return wrapStoreErr("failed to clear search row", err)
	}

	_, err := tx.Exec(`
		INSERT INTO sessions_fts (session_id, name, title, summary)
		SELECT s.id, s.name, COALESCE(a.title, ''), COALESCE(a.summary, '')
		FROM sessions s
		LEFT JOIN analysis_cache a ON a.session_id = s.id
		WHERE s.id = ?
	`, sessionID)
	if err != nil {
		return wrapStoreErr("failed to rebuild search row", err)
	}

	return nil
}

// ReindexSession rebuilds the full-text row for one session in its own
// transaction, for callers outside a metadata write.
func (db *DB) ReindexSession(sessionID string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		return db.reindexSessionTx(tx, sessionID)
	})
}

// SearchResult is a ranked full-text match.
type SearchResult struct {
	Session SessionRecord `json:"session"`
	Title   string        `json:"title,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Rank    float64       `json:"rank"`
}

// SearchSessions returns sessions matching the query, most relevant
// first, ties broken by most-recent last message time. Raw input is
// sanitized here; special-character queries degrade to zero or few
// results rather than erroring.
func (db *DB) SearchSessions(rawQuery string, limit, offset int) ([]SearchResult, error) {
	sanitized := SanitizeQuery(rawQuery)
	if IsMatchNothing(sanitized) {
		return nil, nil
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.Query(`
		SELECT s.id, s.project_path, s.file_path, s.file_mtime, s.file_size,
		       s.name, s.message_count, s.last_message_at, s.fingerprint, s.analyzed,
		       s.created_at, s.updated_at,
		       f.title, f.summary,
		       bm25(sessions_fts) AS rank
		FROM sessions_fts f
		JOIN sessions s ON s.id = f.session_id
		WHERE sessions_fts MATCH ?
		ORDER BY rank ASC, s.last_message_at DESC
		LIMIT ? OFFSET ?
	`, MatchExpression(sanitized), limit, offset)
	if err != nil {
		return nil, wrapStoreErr("search failed", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var lastMessageAt sql.NullString
		var analyzed int
		var createdAt, updatedAt string

		err := rows.Scan(
			&r.Session.ID, &r.Session.ProjectPath, &r.Session.FilePath,
			&r.Session.FileMtime, &r.Session.FileSize,
			&r.Session.Name, &r.Session.MessageCount, &lastMessageAt,
			&r.Session.Fingerprint, &analyzed,
			&createdAt, &updatedAt,
			&r.Title, &r.Summary, &r.Rank,
		)
		if err != nil {
			return nil, wrapStoreErr("failed to scan search result", err)
		}

		r.Session.Analyzed = analyzed != 0
		r.Session.LastMessageAt = parseTime(lastMessageAt.String)
		r.Session.CreatedAt = parseTime(createdAt)
		r.Session.UpdatedAt = parseTime(updatedAt)
		results = append(results, r)
	}

	return results, rows.Err()
}

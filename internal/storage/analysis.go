package storage

import (
	"database/sql"
	"strings"
	"time"
)

// AnalysisEntry holds the last successful analysis output for a session
// plus the fingerprint captured at analysis time.
type AnalysisEntry struct {
	SessionID   string    `json:"sessionId"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Fingerprint string    `json:"fingerprint"`
	AnalyzedAt  time.Time `json:"analyzedAt"`
}

// ClearScope optionally narrows a cache clear to one project or an
// explicit session set. The zero value means everything.
type ClearScope struct {
	ProjectPath string
	SessionIDs  []string
}

// GetAnalysis returns the cached analysis row for a session, or nil if
// none exists. Validity (age, fingerprint) is the caller's concern.
func (db *DB) GetAnalysis(sessionID string) (*AnalysisEntry, error) {
	var entry AnalysisEntry
	var analyzedAt string

	err := db.QueryRow(`
		SELECT session_id, title, summary, fingerprint, analyzed_at
		FROM analysis_cache WHERE session_id = ?
	`, sessionID).Scan(&entry.SessionID, &entry.Title, &entry.Summary, &entry.Fingerprint, &analyzedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("failed to read analysis cache", err)
	}

	entry.AnalyzedAt = parseTime(analyzedAt)
	return &entry, nil
}

// PutAnalysis overwrites the analysis cache row for a session, flips the
// analyzed flag and rebuilds the search row, all in one transaction.
// Only successful analysis jobs call this.
func (db *DB) PutAnalysis(entry *AnalysisEntry) error {
	unlock := db.locks.lock(entry.SessionID)
	defer unlock()

	return db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO analysis_cache (session_id, title, summary, fingerprint, analyzed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				title = excluded.title,
				summary = excluded.summary,
				fingerprint = excluded.fingerprint,
				analyzed_at = excluded.analyzed_at
		`, entry.SessionID, entry.Title, entry.Summary, entry.Fingerprint,
			entry.AnalyzedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return wrapStoreErr("failed to write analysis cache", err)
		}

		if err := setAnalyzedTx(tx, entry.SessionID, true); err != nil {
			return wrapStoreErr("failed to set analyzed flag", err)
		}

		return db.reindexSessionTx(tx, entry.SessionID)
	})
}

// ClearAnalysisCache deletes analysis rows within the scope and returns
// the number removed. Session and continuation edge rows are never
// touched; affected sessions are marked unanalyzed and their search rows
// rebuilt.
func (db *DB) ClearAnalysisCache(scope ClearScope) (int, error) {
	where := ""
	var args []interface{}

	switch {
	case len(scope.SessionIDs) > 0:
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(scope.SessionIDs)), ",")
		where = "WHERE session_id IN (" + placeholders + ")"
		for _, id := range scope.SessionIDs {
			args = append(args, id)
		}
	case scope.ProjectPath != "":
		where = "WHERE session_id IN (SELECT id FROM sessions WHERE project_path = ?)"
		args = append(args, scope.ProjectPath)
	}

	var cleared []string
	removed := 0

	err := db.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT session_id FROM analysis_cache "+where, args...)
		if err != nil {
			return wrapStoreErr("failed to list cache rows", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return wrapStoreErr("failed to scan cache row", err)
			}
			cleared = append(cleared, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapStoreErr("failed to list cache rows", err)
		}

		res, err := tx.Exec("DELETE FROM analysis_cache "+where, args...)
		if err != nil {
			return wrapStoreErr("failed to clear analysis cache", err)
		}
		n, _ := res.RowsAffected()
		removed = int(n)

		for _, id := range cleared {
			if err := setAnalyzedTx(tx, id, false); err != nil {
				return wrapStoreErr("failed to reset analyzed flag", err)
			}
			if err := db.reindexSessionTx(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.logger.Info("Cleared analysis cache", map[string]interface{}{
		"removed": removed,
	})
	return removed, nil
}

// CountAnalysisCache returns the number of analysis cache rows.
func (db *DB) CountAnalysisCache() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM analysis_cache").Scan(&n); err != nil {
		return 0, wrapStoreErr("failed to count analysis cache", err)
	}
	return n, nil
}

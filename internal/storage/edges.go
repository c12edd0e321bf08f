package storage

import (
	"database/sql"
	"time"
)

// ContinuationEdge is a directed link meaning "child continues parent".
type ContinuationEdge struct {
	ParentSessionID string    `json:"parentSessionId"`
	ChildSessionID  string    `json:"childSessionId"`
	Order           int       `json:"order"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HasParentEdge reports whether a child already has a parent edge.
func (db *DB) HasParentEdge(childID string) (bool, error) {
	var one int
	err := db.QueryRow(
		"SELECT 1 FROM continuation_edges WHERE child_session_id = ?", childID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreErr("failed to check parent edge", err)
	}
	return true, nil
}

// LinkContinuation inserts the edge child-continues-parent with
// ord = max(ord)+1 for that parent, flips every previously active edge
// in the chain inactive and marks the new edge active, in one
// transaction.
func (db *DB) LinkContinuation(parentID, childID string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		var maxOrd sql.NullInt64
		err := tx.QueryRow(
			"SELECT MAX(ord) FROM continuation_edges WHERE parent_session_id = ?", parentID,
		).Scan(&maxOrd)
		if err != nil && err != sql.ErrNoRows {
			return wrapStoreErr("failed to read edge order", err)
		}
		ord := int64(1)
		if maxOrd.Valid {
			ord = maxOrd.Int64 + 1
		}

		// Deactivate every edge in the chain containing the parent.
		_, err = tx.Exec(`
			WITH RECURSIVE up(id) AS (
				SELECT ?
				UNION
				SELECT e.parent_session_id FROM continuation_edges e JOIN up ON e.child_session_id = up.id
			),
			chain(id) AS (
				SELECT id FROM up
				UNION
				SELECT e.child_session_id FROM continuation_edges e JOIN chain ON e.parent_session_id = chain.id
			)
			UPDATE continuation_edges SET is_active = 0
			WHERE is_active = 1
			  AND (parent_session_id IN (SELECT id FROM chain)
			       OR child_session_id IN (SELECT id FROM chain))
		`, parentID)
		if err != nil {
			return wrapStoreErr("failed to deactivate chain head", err)
		}

		_, err = tx.Exec(`
			INSERT INTO continuation_edges (parent_session_id, child_session_id, ord, is_active, created_at)
			VALUES (?, ?, ?, 1, ?)
		`, parentID, childID, ord, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return wrapStoreErr("failed to insert continuation edge", err)
		}

		return nil
	})
}

// ChainNode is one session in a continuation chain, in chain order.
type ChainNode struct {
	Session  SessionRecord `json:"session"`
	Order    int           `json:"order"` // 0 for the root
	IsActive bool          `json:"isActive"`
}

// GetChain returns the continuation chain containing the session,
// ordered root first. A session with no edges yields a single-node
// root chain.
func (db *DB) GetChain(sessionID string) ([]ChainNode, error) {
	// Walk up to the root.
	rootID := sessionID
	for {
		var parentID string
		err := db.QueryRow(
			"SELECT parent_session_id FROM continuation_edges WHERE child_session_id = ?", rootID,
		).Scan(&parentID)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, wrapStoreErr("failed to walk chain", err)
		}
		rootID = parentID
	}

	root, err := db.GetSession(rootID)
	if err != nil {
		return nil, err
	}

	chain := []ChainNode{{Session: *root, Order: 0}}

	// Walk down following edges in chain order.
	currentID := rootID
	for {
		row := db.QueryRow(`
			SELECT s.id, s.project_path, s.file_path, s.file_mtime, s.file_size,
			       s.name, s.message_count, s.last_message_at, s.fingerprint, s.analyzed,
			       s.created_at, s.updated_at,
			       e.ord, e.is_active
			FROM continuation_edges e
			JOIN sessions s ON s.id = e.child_session_id
			WHERE e.parent_session_id = ?
			ORDER BY e.ord DESC
			LIMIT 1
		`, currentID)

		var rec SessionRecord
		var lastMessageAt sql.NullString
		var analyzed, isActive int
		var createdAt, updatedAt string
		var ord int

		err := row.Scan(
			&rec.ID, &rec.ProjectPath, &rec.FilePath, &rec.FileMtime, &rec.FileSize,
			&rec.Name, &rec.MessageCount, &lastMessageAt, &rec.Fingerprint, &analyzed,
			&createdAt, &updatedAt,
			&ord, &isActive,
		)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, wrapStoreErr("failed to walk chain", err)
		}

		rec.Analyzed = analyzed != 0
		rec.LastMessageAt = parseTime(lastMessageAt.String)
		rec.CreatedAt = parseTime(createdAt)
		rec.UpdatedAt = parseTime(updatedAt)

		chain = append(chain, ChainNode{Session: rec, Order: ord, IsActive: isActive != 0})
		currentID = rec.ID
	}

	return chain, nil
}

// ActiveEdgeCount returns the number of active edges in the chain
// containing the session. Used to verify the one-active-head invariant.
func (db *DB) ActiveEdgeCount(sessionID string) (int, error) {
	var n int
	err := db.QueryRow(`
		WITH RECURSIVE up(id) AS (
			SELECT ?
			UNION
			SELECT e.parent_session_id FROM continuation_edges e JOIN up ON e.child_session_id = up.id
		),
		chain(id) AS (
			SELECT id FROM up
			UNION
			SELECT e.child_session_id FROM continuation_edges e JOIN chain ON e.parent_session_id = chain.id
		)
		SELECT COUNT(*) FROM continuation_edges
		WHERE is_active = 1
		  AND (parent_session_id IN (SELECT id FROM chain)
		       OR child_session_id IN (SELECT id FROM chain))
	`, sessionID).Scan(&n)
	if err != nil {
		return 0, wrapStoreErr("failed to count active edges", err)
	}
	return n, nil
}

// PendingLink is a continuation reference whose parent has not been
// discovered yet.
type PendingLink struct {
	ChildSessionID  string
	ParentSessionID string
	Attempts        int
}

// SavePendingLink records a forward reference for retry on a later scan.
func (db *DB) SavePendingLink(childID, parentID string) error {
	_, err := db.Exec(`
		INSERT INTO pending_links (child_session_id, parent_session_id, attempts, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(child_session_id) DO UPDATE SET
			parent_session_id = excluded.parent_session_id
	`, childID, parentID, time.Now().UTC().Format(time.RFC3339))
	return wrapStoreErr("failed to save pending link", err)
}

// PendingLinks returns all deferred links.
func (db *DB) PendingLinks() ([]PendingLink, error) {
	rows, err := db.Query("SELECT child_session_id, parent_session_id, attempts FROM pending_links")
	if err != nil {
		return nil, wrapStoreErr("failed to list pending links", err)
	}
	defer rows.Close()

	var links []PendingLink
	for rows.Next() {
		var l PendingLink
		if err := rows.Scan(&l.ChildSessionID, &l.ParentSessionID, &l.Attempts); err != nil {
			return nil, wrapStoreErr("failed to scan pending link", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// ResolvePendingLink removes a deferred link once it has been resolved
// or permanently rejected.
func (db *DB) ResolvePendingLink(childID string) error {
	_, err := db.Exec("DELETE FROM pending_links WHERE child_session_id = ?", childID)
	return wrapStoreErr("failed to resolve pending link", err)
}

// BumpPendingLink increments the retry counter for a deferred link.
func (db *DB) BumpPendingLink(childID string) error {
	_, err := db.Exec("UPDATE pending_links SET attempts = attempts + 1 WHERE child_session_id = ?", childID)
	return wrapStoreErr("failed to bump pending link", err)
}

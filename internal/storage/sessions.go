package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	skberrors "skb/internal/errors"
)

// SessionRecord is one discovered transcript file.
type SessionRecord struct {
	ID            string    `json:"id"`
	ProjectPath   string    `json:"projectPath"`
	FilePath      string    `json:"filePath"`
	FileMtime     int64     `json:"fileMtime"` // unix seconds
	FileSize      int64     `json:"fileSize"`
	Name          string    `json:"name"` // first user message, truncated
	MessageCount  int       `json:"messageCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Fingerprint   string    `json:"fingerprint"`
	Analyzed      bool      `json:"analyzed"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// sessionLocks serializes writers per session identifier while letting
// writers to different sessions proceed in parallel.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *sessionLocks) lock(id string) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// UpsertSession inserts or updates a session record and rebuilds its
// full-text row in the same transaction. The call is a no-op when the
// stored modification time and size already match, so unchanged files
// cause no write and no index churn. An update that changes the
// fingerprint resets the analyzed flag, since any cached analysis no
// longer describes the current content.
func (db *DB) UpsertSession(rec *SessionRecord) (bool, error) {
	if rec.ID == "" {
		return false, skberrors.New(skberrors.InvalidQuery, "session record requires an id", nil)
	}

	unlock := db.locks.lock(rec.ID)
	defer unlock()

	var storedMtime, storedSize int64
	err := db.QueryRow(
		"SELECT file_mtime, file_size FROM sessions WHERE id = ?", rec.ID,
	).Scan(&storedMtime, &storedSize)

	switch {
	case err == nil:
		if storedMtime == rec.FileMtime && storedSize == rec.FileSize {
			return false, nil // unchanged, idempotent no-op
		}
	case err == sql.ErrNoRows:
		// first discovery
	default:
		return false, wrapStoreErr("failed to read session", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	txErr := db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (
				id, project_path, file_path, file_mtime, file_size,
				name, message_count, last_message_at, fingerprint, analyzed,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				project_path = excluded.project_path,
				file_path = excluded.file_path,
				file_mtime = excluded.file_mtime,
				file_size = excluded.file_size,
				name = excluded.name,
				message_count = excluded.message_count,
				last_message_at = excluded.last_message_at,
				analyzed = CASE WHEN fingerprint = excluded.fingerprint THEN analyzed ELSE 0 END,
				fingerprint = excluded.fingerprint,
				updated_at = excluded.updated_at
		`,
			rec.ID, rec.ProjectPath, rec.FilePath, rec.FileMtime, rec.FileSize,
			rec.Name, rec.MessageCount, nullableTime(rec.LastMessageAt),
			rec.Fingerprint, now, now,
		)
		if err != nil {
			return wrapStoreErr("failed to upsert session", err)
		}

		return db.reindexSessionTx(tx, rec.ID)
	})
	if txErr != nil {
		return false, txErr
	}

	return true, nil
}

// GetSession retrieves a session by id.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	row := db.QueryRow(`
		SELECT id, project_path, file_path, file_mtime, file_size,
		       name, message_count, last_message_at, fingerprint, analyzed,
		       created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, skberrors.New(skberrors.SessionNotFound, fmt.Sprintf("session %s not found", id), nil)
	}
	if err != nil {
		return nil, wrapStoreErr("failed to read session", err)
	}
	return rec, nil
}

// GetSessionByFilePath retrieves a session by its absolute file path.
func (db *DB) GetSessionByFilePath(filePath string) (*SessionRecord, error) {
	row := db.QueryRow(`
		SELECT id, project_path, file_path, file_mtime, file_size,
		       name, message_count, last_message_at, fingerprint, analyzed,
		       created_at, updated_at
		FROM sessions WHERE file_path = ?
	`, filePath)

	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("failed to read session", err)
	}
	return rec, nil
}

// SessionExists reports whether a session id exists, optionally within a
// specific project.
func (db *DB) SessionExists(id string) (bool, string, error) {
	var projectPath string
	err := db.QueryRow("SELECT project_path FROM sessions WHERE id = ?", id).Scan(&projectPath)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", wrapStoreErr("failed to check session", err)
	}
	return true, projectPath, nil
}

// CountSessions returns the number of session rows.
func (db *DB) CountSessions() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, wrapStoreErr("failed to count sessions", err)
	}
	return n, nil
}

// setAnalyzedTx flips the session's analyzed flag inside a transaction.
func setAnalyzedTx(tx *sql.Tx, sessionID string, analyzed bool) error {
	flag := 0
	if analyzed {
		flag = 1
	}
	_, err := tx.Exec(
		"UPDATE sessions SET analyzed = ?, updated_at = ? WHERE id = ?",
		flag, time.Now().UTC().Format(time.RFC3339), sessionID,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var lastMessageAt sql.NullString
	var analyzed int
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.ID, &rec.ProjectPath, &rec.FilePath, &rec.FileMtime, &rec.FileSize,
		&rec.Name, &rec.MessageCount, &lastMessageAt, &rec.Fingerprint, &analyzed,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Analyzed = analyzed != 0
	rec.LastMessageAt = parseTime(lastMessageAt.String)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

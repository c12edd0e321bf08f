package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		if err := createSessionsTable(tx); err != nil {
			return err
		}
		if err := createContinuationEdgesTable(tx); err != nil {
			return err
		}
		if err := createAnalysisCacheTable(tx); err != nil {
			return err
		}
		if err := createAnalysisRunsTable(tx); err != nil {
			return err
		}
		if err := createPendingLinksTable(tx); err != nil {
			return err
		}
		if err := createSearchIndexTable(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Catalog schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Catalog schema is up to date", map[string]interface{}{
			"version": version,
		})
		return nil
	}

	db.logger.Info("Running catalog migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Run migrations sequentially
	// Add migration functions here as schema evolves
	// Example:
	// if version < 2 {
	//     if err := db.migrateToV2(); err != nil {
	//         return err
	//     }
	// }

	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		// Table doesn't exist, this is a new database
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createSchemaVersionTable creates the schema_version tracking table
func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createSessionsTable creates the sessions table, one row per discovered
// transcript file. Session rows are never deleted by normal operation.
func createSessionsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_path TEXT NOT NULL,
			file_path TEXT NOT NULL UNIQUE,
			file_mtime INTEGER NOT NULL,
			file_size INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			last_message_at TEXT,
			fingerprint TEXT NOT NULL DEFAULT '',
			analyzed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_project_path ON sessions(project_path)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_last_message_at ON sessions(last_message_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_analyzed ON sessions(analyzed)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createContinuationEdgesTable creates the continuation_edges table.
// A child has at most one parent; ord is strictly increasing per parent;
// exactly one edge per chain is active.
func createContinuationEdgesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS continuation_edges (
			parent_session_id TEXT NOT NULL,
			child_session_id TEXT NOT NULL UNIQUE,
			ord INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,

			PRIMARY KEY (parent_session_id, child_session_id),
			UNIQUE (parent_session_id, ord),
			FOREIGN KEY (parent_session_id) REFERENCES sessions(id),
			FOREIGN KEY (child_session_id) REFERENCES sessions(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create continuation_edges table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_continuation_edges_parent ON continuation_edges(parent_session_id)",
		"CREATE INDEX IF NOT EXISTS idx_continuation_edges_active ON continuation_edges(is_active)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createAnalysisCacheTable creates the analysis_cache table. Rows are
// written only by successful analysis jobs; validity is decided at read
// time by fingerprint and age.
func createAnalysisCacheTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_cache (
			session_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			analyzed_at TEXT NOT NULL,

			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create analysis_cache table: %w", err)
	}

	return nil
}

// createAnalysisRunsTable creates the analysis_runs table. The daily
// quota counter is derived by querying this table, never kept as
// independent mutable state.
func createAnalysisRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_runs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			batch_id TEXT,
			status TEXT NOT NULL CHECK(status IN ('queued', 'running', 'completed', 'failed', 'timeout', 'cancelled')),
			day TEXT NOT NULL,
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			error TEXT,

			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create analysis_runs table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_analysis_runs_day_status ON analysis_runs(day, status)",
		"CREATE INDEX IF NOT EXISTS idx_analysis_runs_session ON analysis_runs(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_analysis_runs_batch ON analysis_runs(batch_id)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createPendingLinksTable creates the pending_links table holding
// forward continuation references whose parent has not been discovered
// yet. Re-attempted on each scan.
func createPendingLinksTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS pending_links (
			child_session_id TEXT PRIMARY KEY,
			parent_session_id TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,

			FOREIGN KEY (child_session_id) REFERENCES sessions(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pending_links table: %w", err)
	}

	return nil
}

// createSearchIndexTable creates the FTS5 projection over session
// identifiers, names and summaries. Maintained by reindexSessionTx
// inside the same transaction as the originating metadata write.
func createSearchIndexTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
			session_id,
			name,
			title,
			summary
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions_fts table: %w", err)
	}

	return nil
}

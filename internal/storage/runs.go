package storage

import (
	"database/sql"
	"time"
)

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunTimeout   RunStatus = "timeout"
	RunCancelled RunStatus = "cancelled"
)

// AnalysisRun records one admitted analysis attempt. The daily quota
// counter is derived from these rows: queued, running and completed runs
// count against the limit; failed, timed-out and cancelled runs do not.
type AnalysisRun struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	BatchID    string    `json:"batchId,omitempty"`
	Status     RunStatus `json:"status"`
	Day        string    `json:"day"` // local calendar date, YYYY-MM-DD
	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// LocalDay formats a time as the local calendar date used for quota
// scoping.
func LocalDay(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// InsertRunIfUnderQuota atomically checks today's admitted count against
// the daily limit and inserts the run when under it. The check and the
// insert share one transaction so two nearly-simultaneous requests
// cannot both observe "quota available". Returns false when the quota is
// exhausted. A limit of zero or below disables the quota.
func (db *DB) InsertRunIfUnderQuota(run *AnalysisRun, dailyLimit int) (bool, error) {
	admitted := false
	err := db.WithTx(func(tx *sql.Tx) error {
		if dailyLimit > 0 {
			var used int
			err := tx.QueryRow(`
				SELECT COUNT(*) FROM analysis_runs
				WHERE day = ? AND status IN ('queued', 'running', 'completed')
			`, run.Day).Scan(&used)
			if err != nil {
				return wrapStoreErr("failed to derive quota counter", err)
			}
			if used >= dailyLimit {
				return nil
			}
		}

		_, err := tx.Exec(`
			INSERT INTO analysis_runs (id, session_id, batch_id, status, day, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, run.SessionID, nullString(run.BatchID), string(run.Status),
			run.Day, run.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return wrapStoreErr("failed to insert analysis run", err)
		}
		admitted = true
		return nil
	})
	return admitted, err
}

// MarkRunStarted transitions a run to running.
func (db *DB) MarkRunStarted(runID string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE analysis_runs SET status = 'running', started_at = ? WHERE id = ?
	`, at.UTC().Format(time.RFC3339), runID)
	return wrapStoreErr("failed to mark run started", err)
}

// SettleRun records the terminal state of a run.
func (db *DB) SettleRun(runID string, status RunStatus, errMessage string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE analysis_runs SET status = ?, finished_at = ?, error = ? WHERE id = ?
	`, string(status), at.UTC().Format(time.RFC3339), nullString(errMessage), runID)
	return wrapStoreErr("failed to settle run", err)
}

// CountAdmitted returns the number of runs counting against the quota
// for the given day, queried fresh from the store.
func (db *DB) CountAdmitted(day string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM analysis_runs
		WHERE day = ? AND status IN ('queued', 'running', 'completed')
	`, day).Scan(&n)
	if err != nil {
		return 0, wrapStoreErr("failed to derive quota counter", err)
	}
	return n, nil
}

// BatchStatusCounts returns how many runs of a batch sit in each
// lifecycle state.
func (db *DB) BatchStatusCounts(batchID string) (map[RunStatus]int, error) {
	rows, err := db.Query(`
		SELECT status, COUNT(*) FROM analysis_runs WHERE batch_id = ? GROUP BY status
	`, batchID)
	if err != nil {
		return nil, wrapStoreErr("failed to count batch runs", err)
	}
	defer rows.Close()

	counts := make(map[RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrapStoreErr("failed to scan batch count", err)
		}
		counts[RunStatus(status)] = n
	}
	return counts, rows.Err()
}

// RunErrors lists the failed runs for a batch, newest first.
func (db *DB) RunErrors(batchID string) ([]AnalysisRun, error) {
	rows, err := db.Query(`
		SELECT id, session_id, COALESCE(batch_id, ''), status, day,
		       created_at, COALESCE(started_at, ''), COALESCE(finished_at, ''), COALESCE(error, '')
		FROM analysis_runs
		WHERE batch_id = ? AND status IN ('failed', 'timeout')
		ORDER BY finished_at DESC
	`, batchID)
	if err != nil {
		return nil, wrapStoreErr("failed to list run errors", err)
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var r AnalysisRun
		var status, createdAt, startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.BatchID, &status, &r.Day,
			&createdAt, &startedAt, &finishedAt, &r.Error); err != nil {
			return nil, wrapStoreErr("failed to scan run", err)
		}
		r.Status = RunStatus(status)
		r.CreatedAt = parseTime(createdAt)
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

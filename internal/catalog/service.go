// Package catalog is the service facade over the session store: list,
// search, chain and analysis operations with the read-side cache
// validity rules applied in one place.
package catalog

import (
	"database/sql"
	"time"

	"skb/internal/analysis"
	"skb/internal/logging"
	"skb/internal/query"
	"skb/internal/storage"
)

// SessionView is a session row with the optional projection fields
// callers can request.
type SessionView struct {
	storage.SessionRecord
	ContinuationCount int       `json:"continuationCount,omitempty"`
	Title             string    `json:"title,omitempty"`
	Summary           string    `json:"summary,omitempty"`
	AnalyzedAt        time.Time `json:"analyzedAt,omitempty"`
}

// Service exposes the catalog operations to the CLI and daemon.
type Service struct {
	db         *storage.DB
	controller *analysis.Controller
	logger     *logging.Logger
	cacheDays  int

	now func() time.Time
}

// NewService creates the facade. The controller may be nil for
// read-only callers.
func NewService(db *storage.DB, controller *analysis.Controller, cacheDays int, logger *logging.Logger) *Service {
	return &Service{
		db:         db,
		controller: controller,
		logger:     logger,
		cacheDays:  cacheDays,
		now:        time.Now,
	}
}

// ListSessions runs the assembled list statement and scans results.
// Analysis output passes the validity gate before it is shown: a stale
// or aged-out cache entry presents the session as unanalyzed, analyzed
// flag included.
func (s *Service) ListSessions(opts query.Options) ([]SessionView, error) {
	stmt, err := query.Build(opts)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []SessionView
	for rows.Next() {
		view, err := scanView(rows, opts)
		if err != nil {
			return nil, err
		}
		s.gateAnalysisFields(view)
		views = append(views, *view)
	}
	return views, rows.Err()
}

// Search runs ranked full-text search with the same validity gate on
// analysis fields.
func (s *Service) Search(term string, limit, offset int) ([]SessionView, error) {
	results, err := s.db.SearchSessions(term, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(results))
	for _, r := range results {
		view := SessionView{SessionRecord: r.Session, Title: r.Title, Summary: r.Summary}
		s.gateAnalysisFields(&view)
		views = append(views, view)
	}
	return views, nil
}

// GetSession returns one session with validity-gated analysis fields.
func (s *Service) GetSession(id string) (*SessionView, error) {
	rec, err := s.db.GetSession(id)
	if err != nil {
		return nil, err
	}

	view := &SessionView{SessionRecord: *rec}
	entry, err := s.db.GetAnalysis(id)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		view.Title = entry.Title
		view.Summary = entry.Summary
		view.AnalyzedAt = entry.AnalyzedAt
	}
	s.gateAnalysisFields(view)
	return view, nil
}

// GetContinuationChain returns the full chain containing the session,
// root first.
func (s *Service) GetContinuationChain(id string) ([]storage.ChainNode, error) {
	return s.db.GetChain(id)
}

// RequestAnalysis submits one session for analysis.
func (s *Service) RequestAnalysis(id string) (*analysis.RequestOutcome, error) {
	return s.controller.Request(id, "")
}

// RequestBatchAnalysis submits many sessions under one batch id.
func (s *Service) RequestBatchAnalysis(ids []string) (*analysis.BatchReport, error) {
	return s.controller.RequestBatch(ids)
}

// BatchProgress reports the state of a submitted batch.
func (s *Service) BatchProgress(batchID string) (*analysis.BatchProgress, error) {
	return s.controller.Progress(batchID)
}

// ClearCache removes cached analysis within the scope and returns how
// many entries were deleted.
func (s *Service) ClearCache(scope storage.ClearScope) (int, error) {
	return s.db.ClearAnalysisCache(scope)
}

// QuotaStatus reports today's analysis quota usage.
func (s *Service) QuotaStatus() (*analysis.QuotaStatus, error) {
	return s.controller.Quota()
}

// gateAnalysisFields blanks analysis output that no longer passes the
// validity rules, analyzed flag included, so the session reads as
// unanalyzed. The cache row itself stays on disk; re-analysis will
// overwrite it. The projections carry no cache fingerprint, so the
// stored entry is fetched for the comparison.
func (s *Service) gateAnalysisFields(view *SessionView) {
	if !view.Analyzed && view.Title == "" && view.Summary == "" {
		return
	}

	entry, err := s.db.GetAnalysis(view.ID)
	if err != nil || !analysis.EntryValid(entry, view.Fingerprint, s.cacheDays, s.now()) {
		view.Analyzed = false
		view.Title, view.Summary, view.AnalyzedAt = "", "", time.Time{}
	}
}

// scanView scans one result row in the fixed projection order: session
// columns, continuation count when requested, analysis columns when
// requested.
func scanView(rows *sql.Rows, opts query.Options) (*SessionView, error) {
	var view SessionView
	var lastMessageAt sql.NullString
	var analyzed int
	var createdAt, updatedAt string

	dest := []interface{}{
		&view.ID, &view.ProjectPath, &view.FilePath, &view.FileMtime, &view.FileSize,
		&view.Name, &view.MessageCount, &lastMessageAt, &view.Fingerprint, &analyzed,
		&createdAt, &updatedAt,
	}

	var analyzedAt string
	if opts.IncludeContinuationCount {
		dest = append(dest, &view.ContinuationCount)
	}
	if opts.IncludeAnalysis {
		dest = append(dest, &view.Title, &view.Summary, &analyzedAt)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	view.Analyzed = analyzed != 0
	view.LastMessageAt = parseTime(lastMessageAt.String)
	view.CreatedAt = parseTime(createdAt)
	view.UpdatedAt = parseTime(updatedAt)
	view.AnalyzedAt = parseTime(analyzedAt)
	return &view, nil
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

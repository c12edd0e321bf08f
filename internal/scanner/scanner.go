package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skb/internal/analysis"
	"skb/internal/identity"
	"skb/internal/linker"
	"skb/internal/logging"
	"skb/internal/paths"
	"skb/internal/storage"
)

// AnalysisRequester submits sessions for analysis after a scan. The
// scanner tolerates quota denial, it only reports it.
type AnalysisRequester interface {
	RequestBatch(sessionIDs []string) (*analysis.BatchReport, error)
}

// Scanner walks the discovery roots, parses transcripts and registers
// sessions in the catalog.
type Scanner struct {
	db       *storage.DB
	resolver *paths.Resolver
	linker   *linker.Linker
	logger   *logging.Logger

	// AutoAnalyze, when set, submits changed sessions for analysis at
	// the end of each scan pass.
	AutoAnalyze AnalysisRequester
}

// New creates a scanner over the catalog store.
func New(db *storage.DB, resolver *paths.Resolver, lk *linker.Linker, logger *logging.Logger) *Scanner {
	return &Scanner{db: db, resolver: resolver, linker: lk, logger: logger}
}

// Report summarizes one scan pass.
type Report struct {
	Roots      int           `json:"roots"`
	Discovered int           `json:"discovered"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Linked     int           `json:"linked"`
	Deferred   int           `json:"deferred"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Scan walks every discovery root once. A failure on one file is
// logged and counted, never fatal for the pass.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{}
	var changed []string

	roots := s.resolver.DiscoveryRoots()
	report.Roots = len(roots)

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.scanRoot(ctx, root, report, &changed)
	}

	if err := s.linker.RetryPending(); err != nil {
		s.logger.Warn("Failed to retry pending links", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if s.AutoAnalyze != nil && len(changed) > 0 {
		batch, err := s.AutoAnalyze.RequestBatch(changed)
		if err != nil {
			s.logger.Warn("Auto-analysis submission failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else if batch.Denied > 0 {
			s.logger.Info("Auto-analysis partially denied by quota", map[string]interface{}{
				"batchId": batch.BatchID,
				"denied":  batch.Denied,
			})
		}
	}

	report.Duration = time.Since(started)
	s.logger.Info("Scan complete", map[string]interface{}{
		"roots":      report.Roots,
		"discovered": report.Discovered,
		"updated":    report.Updated,
		"unchanged":  report.Unchanged,
		"failed":     report.Failed,
		"durationMs": report.Duration.Milliseconds(),
	})
	return report, nil
}

// scanRoot visits every project directory under one discovery root.
// Transcripts live one level down: <root>/<project>/<session>.jsonl.
// Nested directories hold subagent transcripts and are skipped.
func (s *Scanner) scanRoot(ctx context.Context, root string, report *Report, changed *[]string) {
	projectDirs, err := os.ReadDir(root)
	if err != nil {
		s.logger.Warn("Failed to read discovery root", map[string]interface{}{
			"root":  root,
			"error": err.Error(),
		})
		return
	}

	for _, dir := range projectDirs {
		if !dir.IsDir() {
			continue
		}
		projectDir := filepath.Join(root, dir.Name())
		if s.resolver.ShouldExclude(projectDir) {
			continue
		}

		files, err := os.ReadDir(projectDir)
		if err != nil {
			s.logger.Warn("Failed to read project directory", map[string]interface{}{
				"dir":   projectDir,
				"error": err.Error(),
			})
			continue
		}

		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return
			}
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			filePath := filepath.Join(projectDir, f.Name())
			if s.resolver.ShouldExclude(filePath) {
				continue
			}

			report.Discovered++
			if err := s.scanFile(filePath, report, changed); err != nil {
				report.Failed++
				s.logger.Warn("Failed to scan transcript", map[string]interface{}{
					"file":  filePath,
					"error": err.Error(),
				})
			}
		}
	}
}

// scanFile registers one transcript. Unchanged files are skipped on
// mtime and size alone, without reading content.
func (s *Scanner) scanFile(filePath string, report *Report, changed *[]string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return err
	}

	existing, err := s.db.GetSessionByFilePath(filePath)
	if err != nil {
		return err
	}
	if existing != nil && existing.FileMtime == info.ModTime().Unix() && existing.FileSize == info.Size() {
		report.Unchanged++
		return nil
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	transcript := ParseTranscript(content)
	if transcript == nil {
		// Not a session transcript, skip quietly.
		report.Discovered--
		return nil
	}

	projectPath := identity.NormalizeProjectPath(transcript.ProjectPath)
	rec := &storage.SessionRecord{
		ID:            identity.SessionID(transcript.SessionID, projectPath, filePath),
		ProjectPath:   projectPath,
		FilePath:      filePath,
		FileMtime:     info.ModTime().Unix(),
		FileSize:      info.Size(),
		Name:          transcript.Name,
		MessageCount:  transcript.MessageCount,
		LastMessageAt: transcript.LastMessageAt,
		Fingerprint:   identity.Fingerprint(content),
	}

	updated, err := s.db.UpsertSession(rec)
	if err != nil {
		return err
	}
	if updated {
		report.Updated++
		*changed = append(*changed, rec.ID)
	} else {
		report.Unchanged++
	}

	result, err := s.linker.Link(rec, content)
	if err != nil {
		return err
	}
	switch result {
	case linker.Linked:
		report.Linked++
	case linker.Deferred:
		report.Deferred++
	}

	return nil
}

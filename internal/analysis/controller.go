package analysis

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	skberrors "skb/internal/errors"
	"skb/internal/identity"
	"skb/internal/logging"
	"skb/internal/storage"
)

// Admission is the outcome of an analysis request.
type Admission string

const (
	// Granted means the run was admitted and started immediately.
	Granted Admission = "granted"
	// Queued means the run was admitted but waits for a free slot.
	Queued Admission = "queued"
	// Denied means the daily quota is exhausted.
	Denied Admission = "denied"
	// Cached means a valid cache entry made a run unnecessary. Cached
	// responses never consume quota.
	Cached Admission = "cached"
)

// RequestOutcome reports how a single analysis request was handled.
type RequestOutcome struct {
	RunID string    `json:"runId,omitempty"`
	State Admission `json:"state"`
}

// Options configures the controller from the catalog configuration.
type Options struct {
	DailyLimit    int
	MaxConcurrent int
	Timeout       time.Duration
	CacheDays     int
}

type task struct {
	runID       string
	sessionID   string
	fingerprint string
	content     []byte
}

// Controller admits analysis runs against the daily quota and runs
// admitted work under the concurrency cap. Quota admission is decided
// by the store in a single transaction; the controller only schedules.
type Controller struct {
	db       *storage.DB
	logger   *logging.Logger
	analyzer Analyzer
	opts     Options

	mu      sync.Mutex
	running int
	queue   []*task
	cancels map[string]context.CancelFunc

	wg  sync.WaitGroup
	now func() time.Time
}

// NewController creates a controller. MaxConcurrent below one is
// treated as one.
func NewController(db *storage.DB, analyzer Analyzer, opts Options, logger *logging.Logger) *Controller {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Controller{
		db:       db,
		logger:   logger,
		analyzer: analyzer,
		opts:     opts,
		cancels:  make(map[string]context.CancelFunc),
		now:      time.Now,
	}
}

// Request asks for one session to be analyzed. A valid cache entry
// short-circuits without consuming quota. Denial returns an outcome
// with state denied plus a QUOTA_EXCEEDED error.
func (c *Controller) Request(sessionID, batchID string) (*RequestOutcome, error) {
	session, err := c.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(session.FilePath)
	if err != nil {
		return nil, skberrors.New(skberrors.AnalysisFailed, "failed to read session transcript", err)
	}
	fingerprint := identity.Fingerprint(content)

	entry, err := c.db.GetAnalysis(sessionID)
	if err != nil {
		return nil, err
	}
	if EntryValid(entry, fingerprint, c.opts.CacheDays, c.now()) {
		return &RequestOutcome{State: Cached}, nil
	}

	run := &storage.AnalysisRun{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		BatchID:   batchID,
		Status:    storage.RunQueued,
		Day:       storage.LocalDay(c.now()),
		CreatedAt: c.now(),
	}
	admitted, err := c.db.InsertRunIfUnderQuota(run, c.opts.DailyLimit)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return &RequestOutcome{State: Denied},
			skberrors.New(skberrors.QuotaExceeded, "daily analysis quota exhausted", nil).
				WithDetails(map[string]interface{}{
					"day":   run.Day,
					"limit": c.opts.DailyLimit,
				})
	}

	t := &task{runID: run.ID, sessionID: sessionID, fingerprint: fingerprint, content: content}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running < c.opts.MaxConcurrent {
		c.start(t)
		return &RequestOutcome{RunID: run.ID, State: Granted}, nil
	}
	c.queue = append(c.queue, t)
	return &RequestOutcome{RunID: run.ID, State: Queued}, nil
}

// start launches a task. Caller holds c.mu.
func (c *Controller) start(t *task) {
	c.running++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancels[t.runID] = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, t)

		c.mu.Lock()
		cancel()
		delete(c.cancels, t.runID)
		c.running--
		if len(c.queue) > 0 {
			next := c.queue[0]
			c.queue = c.queue[1:]
			c.start(next)
		}
		c.mu.Unlock()
	}()
}

func (c *Controller) run(ctx context.Context, t *task) {
	if err := c.db.MarkRunStarted(t.runID, c.now()); err != nil {
		c.logger.Error("Failed to mark run started", map[string]interface{}{
			"runId": t.runID,
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	result, err := c.analyzer.Analyze(ctx, t.content)
	switch {
	case err == nil:
		entry := &storage.AnalysisEntry{
			SessionID:   t.sessionID,
			Title:       result.Title,
			Summary:     result.Summary,
			Fingerprint: t.fingerprint,
			AnalyzedAt:  c.now(),
		}
		if err := c.db.PutAnalysis(entry); err != nil {
			c.settle(t.runID, storage.RunFailed, err.Error())
			return
		}
		c.settle(t.runID, storage.RunCompleted, "")
		c.logger.Info("Analysis completed", map[string]interface{}{
			"sessionId": t.sessionID,
			"runId":     t.runID,
		})

	case ctx.Err() == context.DeadlineExceeded || skberrors.HasCode(err, skberrors.AnalysisTimeout):
		// Timed-out runs leave the cache untouched and give the quota
		// slot back.
		c.settle(t.runID, storage.RunTimeout, "analysis timed out")
		c.logger.Warn("Analysis timed out", map[string]interface{}{
			"sessionId": t.sessionID,
			"runId":     t.runID,
		})

	case ctx.Err() == context.Canceled:
		c.settle(t.runID, storage.RunCancelled, "cancelled")

	default:
		c.settle(t.runID, storage.RunFailed, err.Error())
		c.logger.Warn("Analysis failed", map[string]interface{}{
			"sessionId": t.sessionID,
			"runId":     t.runID,
			"error":     err.Error(),
		})
	}
}

func (c *Controller) settle(runID string, status storage.RunStatus, message string) {
	if err := c.db.SettleRun(runID, status, message, c.now()); err != nil {
		c.logger.Error("Failed to settle run", map[string]interface{}{
			"runId": runID,
			"error": err.Error(),
		})
	}
}

// Cancel aborts a run. A queued run is removed from the queue and
// settled as cancelled; a running one has its context cancelled.
func (c *Controller) Cancel(runID string) bool {
	c.mu.Lock()
	for i, t := range c.queue {
		if t.runID == runID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.mu.Unlock()
			c.settle(runID, storage.RunCancelled, "cancelled before start")
			return true
		}
	}
	cancel, ok := c.cancels[runID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until all admitted runs have settled.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// BatchReport aggregates the admission outcomes of a batch request.
type BatchReport struct {
	BatchID string `json:"batchId"`
	Granted int    `json:"granted"`
	Queued  int    `json:"queued"`
	Denied  int    `json:"denied"`
	Cached  int    `json:"cached"`
	Errors  int    `json:"errors"`
}

// RequestBatch submits analysis requests for many sessions under one
// batch id. Quota denial of one session does not abort the rest.
func (c *Controller) RequestBatch(sessionIDs []string) (*BatchReport, error) {
	report := &BatchReport{BatchID: uuid.NewString()}

	for _, id := range sessionIDs {
		outcome, err := c.Request(id, report.BatchID)
		if err != nil {
			if skberrors.HasCode(err, skberrors.QuotaExceeded) {
				report.Denied++
				continue
			}
			report.Errors++
			c.logger.Warn("Batch item failed to submit", map[string]interface{}{
				"sessionId": id,
				"batchId":   report.BatchID,
				"error":     err.Error(),
			})
			continue
		}
		switch outcome.State {
		case Granted:
			report.Granted++
		case Queued:
			report.Queued++
		case Cached:
			report.Cached++
		}
	}
	return report, nil
}

// BatchProgress is a point-in-time view of a batch's runs.
type BatchProgress struct {
	BatchID   string                `json:"batchId"`
	Pending   int                   `json:"pending"`
	Completed int                   `json:"completed"`
	Failed    int                   `json:"failed"`
	Errors    []storage.AnalysisRun `json:"errors,omitempty"`
}

// Progress reports how far a batch has come, with per-item errors for
// runs that failed or timed out.
func (c *Controller) Progress(batchID string) (*BatchProgress, error) {
	counts, err := c.db.BatchStatusCounts(batchID)
	if err != nil {
		return nil, err
	}
	failures, err := c.db.RunErrors(batchID)
	if err != nil {
		return nil, err
	}

	return &BatchProgress{
		BatchID:   batchID,
		Pending:   counts[storage.RunQueued] + counts[storage.RunRunning],
		Completed: counts[storage.RunCompleted],
		Failed:    counts[storage.RunFailed] + counts[storage.RunTimeout] + counts[storage.RunCancelled],
		Errors:    failures,
	}, nil
}

// QuotaStatus reports today's quota usage. A limit of zero or below
// means the quota is disabled.
type QuotaStatus struct {
	Day       string `json:"day"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
}

// Quota derives today's usage from the run ledger.
func (c *Controller) Quota() (*QuotaStatus, error) {
	day := storage.LocalDay(c.now())
	used, err := c.db.CountAdmitted(day)
	if err != nil {
		return nil, err
	}

	status := &QuotaStatus{Day: day, Limit: c.opts.DailyLimit, Used: used}
	if c.opts.DailyLimit <= 0 {
		status.Unlimited = true
		return status, nil
	}
	status.Remaining = c.opts.DailyLimit - used
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	return status, nil
}

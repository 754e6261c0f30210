package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brandlens/brandlens/internal/cache"
	"github.com/brandlens/brandlens/internal/config"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Control-flow sentinels for the per-question workers. They signal that the
// scan's terminal handling already happened and the worker should just
// unwind.
var (
	errScanPaused = errors.New("scan paused")
	errScanFailed = errors.New("scan failed")
)

// ErrInvalidTransition is returned when Start or Resume is invoked against a
// scan that is not in the required source state.
var ErrInvalidTransition = errors.New("invalid scan status transition")

const statusCacheTTL = 30 * time.Minute

// Engine drives a batch scan from pending through running/paused cycles to
// completed or failed. One provider call for one iteration is the unit of
// work; the Iteration row written for it is the durable checkpoint, so an
// interrupted run resumes exactly where the last write left off.
type Engine struct {
	store     store.Store
	cache     cache.Cache
	providers []models.Provider
	breaker   *Breaker
	backoff   Backoff
	notifier  Notifier
	cfg       config.ScanConfig

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an execution engine over the given provider set.
func NewEngine(st store.Store, ca cache.Cache, providers []models.Provider, breaker *Breaker, notifier Notifier, cfg config.ScanConfig) *Engine {
	return &Engine{
		store:     st,
		cache:     ca,
		providers: providers,
		breaker:   breaker,
		backoff:   DefaultBackoff(),
		notifier:  notifier,
		cfg:       cfg,
		sleep:     ctxSleep,
	}
}

// Start begins execution of a pending scan. Returns ErrInvalidTransition if
// the scan is not pending (already started, or finished).
func (e *Engine) Start(ctx context.Context, scanID uuid.UUID) error {
	ok, err := e.store.TransitionScanStatus(ctx, scanID,
		models.ScanStatusPending, models.ScanStatusRunning,
		store.WithStartedAt(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: scan %s is not pending", ErrInvalidTransition, scanID)
	}
	e.setStatusCache(ctx, scanID, models.ScanStatusRunning)
	slog.Info("scan started", "scan_id", scanID)

	return e.run(ctx, scanID)
}

// Resume continues a paused scan from each question's persisted completed
// counts. Idempotent: iteration rows already written are never recomputed.
func (e *Engine) Resume(ctx context.Context, scanID uuid.UUID) error {
	ok, err := e.store.TransitionScanStatus(ctx, scanID,
		models.ScanStatusPaused, models.ScanStatusRunning,
		store.ClearPauseReason())
	if err != nil {
		return fmt.Errorf("resume scan: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: scan %s is not paused", ErrInvalidTransition, scanID)
	}
	e.setStatusCache(ctx, scanID, models.ScanStatusRunning)
	slog.Info("scan resumed", "scan_id", scanID)

	return e.run(ctx, scanID)
}

// Pause requests a cooperative stop of a running scan. The running loop
// observes the flipped status at its next check; in-flight provider calls
// finish or time out naturally.
func (e *Engine) Pause(ctx context.Context, scanID uuid.UUID, reason string) error {
	ok, err := e.store.TransitionScanStatus(ctx, scanID,
		models.ScanStatusRunning, models.ScanStatusPaused,
		store.WithPauseReason(reason))
	if err != nil {
		return fmt.Errorf("pause scan: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: scan %s is not running", ErrInvalidTransition, scanID)
	}
	e.setStatusCache(ctx, scanID, models.ScanStatusPaused)
	slog.Info("scan pause requested", "scan_id", scanID, "reason", reason)
	return nil
}

// run executes the per-question loop for a scan already marked running.
func (e *Engine) run(ctx context.Context, scanID uuid.UUID) error {
	scan, err := e.store.GetScan(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan: %w", err)
	}
	questions, err := e.store.ListQuestions(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	concurrency := scan.Settings.Concurrency
	if concurrency <= 0 {
		concurrency = e.cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, q := range questions {
		if q.Status == models.QuestionStatusCompleted {
			continue
		}
		g.Go(func() error {
			return e.runQuestion(gctx, scan, q)
		})
	}

	err = g.Wait()
	switch {
	case errors.Is(err, errScanPaused):
		slog.Info("scan left paused", "scan_id", scanID)
		return nil
	case errors.Is(err, errScanFailed):
		slog.Warn("scan failed", "scan_id", scanID)
		return nil
	case err != nil:
		// A durable-write fault, not an iteration-local one. Park the scan so
		// a later resume can pick up from the checkpoint.
		slog.Error("scan interrupted by storage fault", "scan_id", scanID, "error", err)
		e.pauseFromEngine(ctx, scanID, models.PauseReasonNetworkError)
		return err
	}

	return e.finalizeScan(ctx, scanID)
}

// runQuestion processes one question across every provider, strictly in
// increasing iteration order per provider.
func (e *Engine) runQuestion(ctx context.Context, scan *models.BatchScan, q *models.Question) error {
	if q.Status == models.QuestionStatusPending {
		if err := e.store.UpdateQuestionStatus(ctx, q.ID, models.QuestionStatusRunning); err != nil {
			return fmt.Errorf("mark question running: %w", err)
		}
	}

	stats, err := e.store.ListProviderStats(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("load provider stats: %w", err)
	}
	byProvider := make(map[string]*models.ProviderStats, len(stats))
	for _, st := range stats {
		byProvider[st.Provider] = st
	}

	every := scan.Settings.StatusCheckEvery
	if every <= 0 {
		every = e.cfg.StatusCheckEvery
	}
	if every <= 0 {
		every = 10
	}

	sinceCheck := 0
	for _, p := range e.providers {
		st, ok := byProvider[p.Name()]
		if !ok {
			continue
		}
		for idx := st.CompletedIterations; idx < st.TotalIterations; idx++ {
			sinceCheck++
			if sinceCheck >= every {
				sinceCheck = 0
				status, err := e.scanStatus(ctx, scan.ID)
				if err != nil {
					return fmt.Errorf("status check: %w", err)
				}
				switch status {
				case models.ScanStatusPaused:
					return errScanPaused
				case models.ScanStatusFailed:
					return errScanFailed
				}
			}

			if err := e.executeIteration(ctx, scan, q, p, idx); err != nil {
				return err
			}
		}
	}

	return e.finalizeQuestion(ctx, scan, q)
}

// executeIteration runs one (question, provider, index) unit of work to a
// terminal outcome: exactly one Iteration row is written whether the call
// succeeded, was skipped, or escalated.
func (e *Engine) executeIteration(ctx context.Context, scan *models.BatchScan, q *models.Question, p models.Provider, idx int) error {
	// An open breaker is an immediate skip: no provider call, no retry budget.
	if e.breaker.IsOpen(p.Name()) {
		return e.recordSkipped(ctx, scan, q, p.Name(), idx,
			fmt.Errorf("circuit breaker open for %s", p.Name()))
	}

	attempt := 0
	for {
		completion, err := e.queryProvider(ctx, scan, q, p)
		if err == nil {
			e.breaker.RecordSuccess(p.Name())
			return e.recordSuccess(ctx, scan, q, p, idx, completion)
		}
		e.breaker.RecordFailure(p.Name())

		cls := Classify(err)
		action := cls.Action
		if action == ActionRetry && attempt >= cls.MaxRetries {
			action = cls.ExhaustAction
			if action == "" {
				action = ActionSkip
			}
		}

		switch action {
		case ActionRetry:
			if rerr := e.store.RecordQuestionError(ctx, q.ID, err.Error()); rerr != nil {
				slog.Warn("record question error", "question_id", q.ID, "error", rerr)
			}
			delay := cls.RetryDelay
			if delay <= 0 {
				delay = e.backoff.Delay(attempt)
			}
			slog.Warn("retrying iteration",
				"scan_id", scan.ID, "question_id", q.ID, "provider", p.Name(),
				"index", idx, "attempt", attempt+1, "kind", cls.Kind, "delay", delay)
			if serr := e.sleep(ctx, delay); serr != nil {
				return serr
			}
			attempt++

		case ActionSkip:
			return e.recordSkipped(ctx, scan, q, p.Name(), idx, err)

		case ActionPause:
			if rerr := e.recordFailedIteration(ctx, scan, q, p.Name(), idx, err); rerr != nil {
				slog.Error("record failed iteration", "question_id", q.ID, "error", rerr)
			}
			e.pauseFromEngine(ctx, scan.ID, cls.PauseReason)
			return errScanPaused

		case ActionFail:
			if rerr := e.recordFailedIteration(ctx, scan, q, p.Name(), idx, err); rerr != nil {
				slog.Error("record failed iteration", "question_id", q.ID, "error", rerr)
			}
			e.failFromEngine(ctx, scan.ID, cls.Kind, err)
			return errScanFailed
		}
	}
}

// queryProvider issues one completion call under the scan's per-call timeout.
func (e *Engine) queryProvider(ctx context.Context, scan *models.BatchScan, q *models.Question, p models.Provider) (models.Completion, error) {
	timeout := time.Duration(scan.Settings.CallTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = e.cfg.CallTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return p.Complete(cctx, q.Text)
}

// recordSuccess analyzes the completion and persists the iteration outcome.
func (e *Engine) recordSuccess(ctx context.Context, scan *models.BatchScan, q *models.Question, p models.Provider, idx int, completion models.Completion) error {
	settings := scan.Settings
	analysis := AnalyzeMentions(completion.Text, settings.BrandName, settings.Keywords, settings.Competitors)

	var sentiment *string
	delta := store.ProviderDelta{Completed: 1, Successful: 1}
	if analysis.BrandMentioned {
		delta.Mentions = 1

		timeout := time.Duration(settings.CallTimeoutSecs) * time.Second
		if timeout <= 0 {
			timeout = e.cfg.CallTimeout
		}
		sctx, cancel := context.WithTimeout(ctx, timeout)
		label := AssignSentiment(sctx, p, q.Text, completion.Text, settings.BrandName)
		cancel()

		sentiment = &label
		switch label {
		case models.SentimentPositive:
			delta.Positive = 1
		case models.SentimentNegative:
			delta.Negative = 1
		default:
			delta.Neutral = 1
		}
	}

	iter := &models.Iteration{
		ID:                 uuid.New(),
		ScanID:             scan.ID,
		QuestionID:         q.ID,
		Provider:           p.Name(),
		Index:              idx,
		Status:             models.IterationStatusSuccess,
		ResponseText:       completion.Text,
		BrandMentioned:     analysis.BrandMentioned,
		MentionPosition:    analysis.MentionPosition,
		Sentiment:          sentiment,
		CompetitorMentions: analysis.CompetitorMentions,
		LatencyMs:          completion.LatencyMs,
		CreatedAt:          time.Now().UTC(),
	}
	if err := e.store.CreateIteration(ctx, iter); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Another resume attempt already persisted this index.
			slog.Warn("iteration already recorded, skipping counters",
				"question_id", q.ID, "provider", p.Name(), "index", idx)
			return nil
		}
		return fmt.Errorf("persist iteration: %w", err)
	}

	if err := e.store.AddProviderProgress(ctx, q.ID, p.Name(), delta); err != nil {
		return fmt.Errorf("bump provider progress: %w", err)
	}
	if err := e.store.AddScanProgress(ctx, scan.ID, 1, p.CostPerCall()); err != nil {
		return fmt.Errorf("bump scan progress: %w", err)
	}

	slog.Debug("iteration completed",
		"scan_id", scan.ID, "question_id", q.ID, "provider", p.Name(),
		"index", idx, "mentioned", analysis.BrandMentioned, "latency_ms", completion.LatencyMs)
	return nil
}

// recordSkipped writes a failed iteration row for a skipped index and
// advances the completed count so the index is never re-attempted. Skips do
// not touch retry_count: they are abandonments, not retries.
func (e *Engine) recordSkipped(ctx context.Context, scan *models.BatchScan, q *models.Question, providerName string, idx int, cause error) error {
	if err := e.recordFailedIteration(ctx, scan, q, providerName, idx, cause); err != nil {
		return err
	}
	slog.Info("iteration skipped",
		"scan_id", scan.ID, "question_id", q.ID, "provider", providerName,
		"index", idx, "error", cause)
	return nil
}

func (e *Engine) recordFailedIteration(ctx context.Context, scan *models.BatchScan, q *models.Question, providerName string, idx int, cause error) error {
	msg := cause.Error()
	iter := &models.Iteration{
		ID:           uuid.New(),
		ScanID:       scan.ID,
		QuestionID:   q.ID,
		Provider:     providerName,
		Index:        idx,
		Status:       models.IterationStatusFailed,
		ErrorMessage: &msg,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateIteration(ctx, iter); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("persist failed iteration: %w", err)
	}
	if err := e.store.SetQuestionLastError(ctx, q.ID, msg); err != nil {
		slog.Warn("set question last error", "question_id", q.ID, "error", err)
	}
	if err := e.store.AddProviderProgress(ctx, q.ID, providerName, store.ProviderDelta{Completed: 1}); err != nil {
		return fmt.Errorf("bump provider progress: %w", err)
	}
	if err := e.store.AddScanProgress(ctx, scan.ID, 1, 0); err != nil {
		return fmt.Errorf("bump scan progress: %w", err)
	}
	return nil
}

// finalizeQuestion computes exposure rates once every provider has reached
// its target total, marks the question completed, and bumps the scan's
// completed-question count.
func (e *Engine) finalizeQuestion(ctx context.Context, scan *models.BatchScan, q *models.Question) error {
	stats, err := e.store.ListProviderStats(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("load provider stats: %w", err)
	}

	var sum float64
	var n int
	for _, st := range stats {
		rate := round1(st.MentionRate())
		if err := e.store.SetProviderExposureRate(ctx, q.ID, st.Provider, rate); err != nil {
			return fmt.Errorf("set exposure rate: %w", err)
		}
		sum += rate
		n++
	}
	avg := 0.0
	if n > 0 {
		avg = round1(sum / float64(n))
	}

	if err := e.store.FinalizeQuestion(ctx, q.ID, avg); err != nil {
		return fmt.Errorf("finalize question: %w", err)
	}
	if err := e.store.IncrementCompletedQuestions(ctx, scan.ID); err != nil {
		return fmt.Errorf("bump completed questions: %w", err)
	}

	slog.Info("question finalized",
		"scan_id", scan.ID, "question_id", q.ID, "avg_exposure_rate", avg)
	return nil
}

// finalizeScan aggregates metrics, persists the score, and emits completion.
func (e *Engine) finalizeScan(ctx context.Context, scanID uuid.UUID) error {
	scan, err := e.store.GetScan(ctx, scanID)
	if err != nil {
		return fmt.Errorf("reload scan: %w", err)
	}
	questions, err := e.store.ListQuestions(ctx, scanID)
	if err != nil {
		return fmt.Errorf("reload questions: %w", err)
	}
	stats, err := e.store.ListScanProviderStats(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan provider stats: %w", err)
	}
	iterations, err := e.store.ListIterations(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load iterations: %w", err)
	}

	metrics := Aggregate(scan.Settings, questions, stats, iterations)

	if scan.UsedCredits > scan.EstimatedCredits {
		// Overage is logged, never blocked.
		slog.Warn("scan exceeded estimated credits",
			"scan_id", scanID, "estimated", scan.EstimatedCredits, "used", scan.UsedCredits)
	}

	ok, err := e.store.TransitionScanStatus(ctx, scanID,
		models.ScanStatusRunning, models.ScanStatusCompleted,
		store.WithAggregateScore(metrics.OverallScore),
		store.WithCompletedAt(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}
	if !ok {
		// Someone flipped the status under us (late pause). Leave it be.
		slog.Warn("scan not in running state at completion", "scan_id", scanID)
		return nil
	}
	e.setStatusCache(ctx, scanID, models.ScanStatusCompleted)

	scan.Status = models.ScanStatusCompleted
	scan.AggregateScore = &metrics.OverallScore
	e.notifier.ScanCompleted(ctx, scan, metrics)
	return nil
}

// scanStatus is the cheap periodic pause check: cache first, store on miss.
func (e *Engine) scanStatus(ctx context.Context, scanID uuid.UUID) (string, error) {
	if status, ok, err := e.cache.GetScanStatus(ctx, scanID); err == nil && ok {
		return status, nil
	}
	status, _, err := e.store.GetScanStatus(ctx, scanID)
	if err != nil {
		return "", err
	}
	e.setStatusCache(ctx, scanID, status)
	return status, nil
}

func (e *Engine) setStatusCache(ctx context.Context, scanID uuid.UUID, status string) {
	if err := e.cache.SetScanStatus(ctx, scanID, status, statusCacheTTL); err != nil {
		slog.Warn("cache scan status", "scan_id", scanID, "error", err)
	}
}

func (e *Engine) pauseFromEngine(ctx context.Context, scanID uuid.UUID, reason string) {
	ok, err := e.store.TransitionScanStatus(ctx, scanID,
		models.ScanStatusRunning, models.ScanStatusPaused,
		store.WithPauseReason(reason))
	if err != nil {
		slog.Error("pause scan", "scan_id", scanID, "error", err)
		return
	}
	if ok {
		e.setStatusCache(ctx, scanID, models.ScanStatusPaused)
		slog.Warn("scan paused by engine", "scan_id", scanID, "reason", reason)
	}
}

func (e *Engine) failFromEngine(ctx context.Context, scanID uuid.UUID, kind FaultKind, cause error) {
	ok, err := e.store.TransitionScanStatus(ctx, scanID,
		models.ScanStatusRunning, models.ScanStatusFailed)
	if err != nil {
		slog.Error("fail scan", "scan_id", scanID, "error", err)
		return
	}
	if ok {
		e.setStatusCache(ctx, scanID, models.ScanStatusFailed)
		slog.Error("scan failed", "scan_id", scanID, "kind", kind, "error", cause)
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

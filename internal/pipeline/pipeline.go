package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rajasatyajit/brocante/config"
	"github.com/rajasatyajit/brocante/internal/canonical"
	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/fingerprint"
	"github.com/rajasatyajit/brocante/internal/logger"
	"github.com/rajasatyajit/brocante/internal/metrics"
	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/internal/sources"
)

// DefaultLookaheadMonths is how far past the current month a run imports
const DefaultLookaheadMonths = 6

// Store is the storage collaborator of an import run
type Store interface {
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	Insert(ctx context.Context, ev *models.CanonicalEvent) (bool, error)
	Count(ctx context.Context) (int, error)
	Health(ctx context.Context) error
}

// Canonicalizer maps raw records to canonical events
type Canonicalizer interface {
	Canonicalize(rec sources.RawRecord, window models.Window) canonical.Result
}

// Options tunes the run window
type Options struct {
	Location        *time.Location
	LookaheadMonths int
	Now             func() time.Time
}

// Orchestrator runs complete imports over the registered sources
type Orchestrator struct {
	store   Store
	canon   Canonicalizer
	fp      *fingerprint.Engine
	sources []sources.Source
	cfg     config.PipelineConfig
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	loc    *time.Location
	months int
	now    func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	mu      sync.RWMutex
	running bool
	state   models.RunState
	last    *models.ImportRunReport
}

// New creates an orchestrator. Sources run in registration order; with
// more than one worker they run concurrently, paced by cfg.RateLimit.
func New(store Store, canon Canonicalizer, fp *fingerprint.Engine, srcs []sources.Source, cfg config.PipelineConfig, opts Options) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LookaheadMonths <= 0 {
		opts.LookaheadMonths = DefaultLookaheadMonths
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if fp == nil {
		fp = fingerprint.New(opts.Location)
	}
	workers := cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}

	limit, burst := rate.Inf, 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if b := int(cfg.RateLimit); b > 1 {
			burst = b
		}
	}

	o := &Orchestrator{
		store:   store,
		canon:   canon,
		fp:      fp,
		sources: srcs,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		sem:     semaphore.NewWeighted(int64(workers)),
		loc:     opts.Location,
		months:  opts.LookaheadMonths,
		now:     opts.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
		state:   models.RunIdle,
	}

	names := make([]string, 0, len(srcs))
	for _, s := range srcs {
		names = append(names, s.Name())
	}
	logger.Info("Pipeline initialized",
		"sources", names,
		"rate_limit", cfg.RateLimit,
		"workers", workers,
		"lookahead_months", o.months,
	)

	return o
}

// RunImport runs every source once and returns the run report. Source and
// record failures are absorbed into the report; only a storage failure
// returns an error, together with the partial report.
func (o *Orchestrator) RunImport(ctx context.Context) (*models.ImportRunReport, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, apperrors.ErrRunInProgress
	}
	o.running = true
	o.state = models.RunRunning
	o.mu.Unlock()

	now := o.now().In(o.loc)
	report := &models.ImportRunReport{
		RunID:     uuid.NewString(),
		State:     models.RunRunning,
		StartedAt: now,
		Window:    models.ImportWindow(now, o.months),
		Sources:   make([]models.SourceReport, len(o.sources)),
	}
	for i, src := range o.sources {
		report.Sources[i].Source = src.Name()
	}

	ctx = logger.WithRunID(ctx, report.RunID)
	log := logger.WithContext(ctx)
	log.Info("Import run started",
		"window_start", report.Window.Start,
		"window_end", report.Window.End,
		"sources", len(o.sources),
	)

	err := o.run(ctx, report)

	stored := 0
	if err == nil {
		n, cerr := o.store.Count(ctx)
		if cerr != nil {
			err = storageFailure("count", cerr)
		} else {
			stored = n
		}
	}
	if err != nil {
		report.Error = err.Error()
	}
	report.Finalize(o.now().In(o.loc), stored)
	o.finish(ctx, report)

	return report, err
}

// run checks storage and then drives the sources
func (o *Orchestrator) run(ctx context.Context, report *models.ImportRunReport) error {
	if err := o.store.Health(ctx); err != nil {
		return storageFailure("health", err)
	}

	if o.cfg.WorkerCount <= 1 || len(o.sources) <= 1 {
		for i, src := range o.sources {
			if err := o.runSource(ctx, src, report.Window, &report.Sources[i]); err != nil {
				return err
			}
		}
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()

			if err := o.sem.Acquire(runCtx, 1); err != nil {
				report.Sources[i].Failure = fmt.Sprintf("not started: %v", err)
				return
			}
			defer o.sem.Release(1)

			if err := o.limiter.Wait(runCtx); err != nil {
				report.Sources[i].Failure = fmt.Sprintf("not started: %v", err)
				return
			}

			// each goroutine owns report.Sources[i]
			if err := o.runSource(runCtx, src, report.Window, &report.Sources[i]); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				errMu.Unlock()
			}
		}(i, src)
	}
	wg.Wait()

	return firstErr
}

// runSource consumes one source. The returned error is always a storage
// failure; anything else ends up in sr.
func (o *Orchestrator) runSource(ctx context.Context, src sources.Source, window models.Window, sr *models.SourceReport) (err error) {
	start := time.Now()
	log := logger.WithContext(ctx).With("source", src.Name())

	defer func() {
		if r := recover(); r != nil {
			sr.Failure = fmt.Sprintf("panic: %v", r)
			sr.Counts.Inc(models.OutcomeErrored)
			log.Error("Source panicked", "panic", r)
		}
		duration := time.Since(start)
		sr.DurationMS = duration.Milliseconds()
		metrics.RecordSourceRun(src.Name(), duration, sr.Failure != "" || err != nil)
		for _, oc := range []struct {
			o models.Outcome
			n int
		}{
			{models.OutcomeImported, sr.Counts.Imported},
			{models.OutcomeSkippedDuplicate, sr.Counts.SkippedDuplicate},
			{models.OutcomeInvalidRejected, sr.Counts.InvalidRejected},
			{models.OutcomeFilteredExcluded, sr.Counts.FilteredExcluded},
			{models.OutcomeErrored, sr.Counts.Errored},
		} {
			metrics.RecordRecordOutcome(src.Name(), string(oc.o), oc.n)
		}
		log.Info("Source completed",
			"imported", sr.Counts.Imported,
			"skipped_duplicate", sr.Counts.SkippedDuplicate,
			"invalid_rejected", sr.Counts.InvalidRejected,
			"filtered_excluded", sr.Counts.FilteredExcluded,
			"errored", sr.Counts.Errored,
			"failure", sr.Failure,
			"duration_ms", sr.DurationMS,
		)
	}()

	for rec, ferr := range src.Fetch(ctx, sources.Params{Window: window}) {
		if ferr != nil {
			o.recordFetchError(log, sr, ferr)
			continue
		}

		outcome, perr := o.processRecord(ctx, rec, window)
		if perr != nil {
			log.Error("Storage failure", "ref", rec.Ref(), "error", perr)
			return perr
		}
		sr.Counts.Inc(outcome)
	}
	return nil
}

type warnDebugLogger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// recordFetchError classifies an error yielded by a source
func (o *Orchestrator) recordFetchError(log warnDebugLogger, sr *models.SourceReport, err error) {
	switch {
	case errors.Is(err, apperrors.ErrSourceUnavailable):
		sr.Failure = err.Error()
		sr.Counts.Inc(models.OutcomeErrored)
		log.Warn("Source unavailable", "error", err)
	case errors.Is(err, apperrors.ErrMalformedRecord):
		sr.Counts.Inc(models.OutcomeInvalidRejected)
		log.Debug("Malformed record", "error", err)
	default:
		sr.Counts.Inc(models.OutcomeErrored)
		log.Warn("Record failed", "error", err)
	}
}

// processRecord takes one record through canonicalize, fingerprint check
// and insert.
func (o *Orchestrator) processRecord(ctx context.Context, rec sources.RawRecord, window models.Window) (models.Outcome, error) {
	res := o.canon.Canonicalize(rec, window)
	if !res.OK() {
		logger.WithContext(ctx).Debug("Record rejected",
			"source", rec.Origin(),
			"ref", rec.Ref(),
			"reason", res.Reason,
			"detail", res.Detail,
		)
		return res.Reason.Outcome(), nil
	}

	ev := res.Event
	ev.Fingerprint = o.fp.Compute(ev)

	exists, err := o.fp.Exists(ctx, o.store, ev.Fingerprint)
	if err != nil {
		return "", storageFailure("exists", err)
	}
	if exists {
		return models.OutcomeSkippedDuplicate, nil
	}

	ev.ID = o.newID(ev.CreatedAt)
	inserted, err := o.store.Insert(ctx, ev)
	if err != nil {
		return "", storageFailure("insert", err)
	}
	if !inserted {
		// lost a race with a concurrent source carrying the same fingerprint
		return models.OutcomeSkippedDuplicate, nil
	}
	return models.OutcomeImported, nil
}

func (o *Orchestrator) newID(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	o.idMu.Lock()
	defer o.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), o.entropy).String()
}

// finish publishes the report and records run metrics
func (o *Orchestrator) finish(ctx context.Context, report *models.ImportRunReport) {
	duration := report.FinishedAt.Sub(report.StartedAt)
	metrics.RecordImportRun(string(report.State), duration)
	if report.State != models.RunFailed {
		metrics.SetEventsStored(float64(report.StoredTotal))
	}

	snapshot := *report
	snapshot.Sources = append([]models.SourceReport(nil), report.Sources...)

	o.mu.Lock()
	o.running = false
	o.state = report.State
	o.last = &snapshot
	o.mu.Unlock()

	log := logger.WithContext(ctx)
	args := []any{
		"state", report.State,
		"imported", report.Totals.Imported,
		"skipped_duplicate", report.Totals.SkippedDuplicate,
		"invalid_rejected", report.Totals.InvalidRejected,
		"filtered_excluded", report.Totals.FilteredExcluded,
		"errored", report.Totals.Errored,
		"stored_total", report.StoredTotal,
		"duration_ms", duration.Milliseconds(),
	}
	if report.State == models.RunFailed {
		log.Error("Import run failed", append(args, "error", report.Error)...)
		return
	}
	log.Info("Import run finished", args...)
}

func storageFailure(op string, err error) error {
	if apperrors.IsStorageFailure(err) {
		return err
	}
	return apperrors.DatabaseError{Operation: op, Err: err}
}

// State returns the state of the current or last run
func (o *Orchestrator) State() models.RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// LastReport returns a copy of the last finished run's report, or nil
func (o *Orchestrator) LastReport() *models.ImportRunReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return nil
	}
	r := *o.last
	r.Sources = append([]models.SourceReport(nil), o.last.Sources...)
	return &r
}

// IsRunning returns whether an import is in progress
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Sources lists the registered source names
func (o *Orchestrator) Sources() []string {
	names := make([]string, 0, len(o.sources))
	for _, s := range o.sources {
		names = append(names, s.Name())
	}
	return names
}

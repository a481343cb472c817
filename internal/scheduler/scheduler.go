package scheduler

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/logger"
	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/internal/runlock"
)

const lockName = "import"

// Runner runs one import
type Runner interface {
	RunImport(ctx context.Context) (*models.ImportRunReport, error)
}

// Config controls the trigger cadence
type Config struct {
	Interval   time.Duration
	RunOnStart bool
	LockTTL    time.Duration
}

// Scheduler triggers imports on a fixed interval. Every trigger, scheduled
// or manual, goes through the run lock.
type Scheduler struct {
	runner Runner
	locker runlock.Locker
	cfg    Config
}

// New creates a scheduler
func New(runner Runner, locker runlock.Locker, cfg Config) *Scheduler {
	if locker == nil {
		locker = runlock.NewLocalLocker()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Hour
	}
	return &Scheduler{runner: runner, locker: locker, cfg: cfg}
}

// Trigger runs one import if no other run holds the lock
func (s *Scheduler) Trigger(ctx context.Context) (*models.ImportRunReport, error) {
	release, ok, err := s.locker.TryAcquire(ctx, lockName, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrRunInProgress
	}
	defer func() {
		// release even if ctx was cancelled during the run
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			logger.Warn("Run lock release failed", "error", err)
		}
	}()

	return s.runner.RunImport(ctx)
}

// Run blocks until ctx is done, triggering an import every interval
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info("Scheduler started",
		"interval", s.cfg.Interval.String(),
		"run_on_start", s.cfg.RunOnStart,
	)

	if s.cfg.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.Trigger(ctx)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrRunInProgress):
		logger.Info("Import skipped, another run holds the lock")
	default:
		logger.Error("Scheduled import failed", "error", err)
	}
}

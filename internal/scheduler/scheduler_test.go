package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/logger"
	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/internal/runlock"
)

func init() {
	logger.Init("error", "text")
}

type mockRunner struct {
	calls atomic.Int32
	err   error
	hold  chan struct{}
}

func (m *mockRunner) RunImport(ctx context.Context) (*models.ImportRunReport, error) {
	m.calls.Add(1)
	if m.hold != nil {
		<-m.hold
	}
	if m.err != nil {
		return &models.ImportRunReport{State: models.RunFailed}, m.err
	}
	return &models.ImportRunReport{State: models.RunCompleted}, nil
}

func TestTrigger(t *testing.T) {
	r := &mockRunner{}
	s := New(r, nil, Config{})

	report, err := s.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if report.State != models.RunCompleted || r.calls.Load() != 1 {
		t.Errorf("unexpected result %+v calls=%d", report, r.calls.Load())
	}

	// lock is released after the run
	if _, err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("second Trigger: %v", err)
	}
}

func TestTrigger_LockHeld(t *testing.T) {
	locker := runlock.NewLocalLocker()
	release, ok, _ := locker.TryAcquire(context.Background(), lockName, time.Minute)
	if !ok {
		t.Fatal("could not pre-acquire lock")
	}
	defer release(context.Background())

	r := &mockRunner{}
	s := New(r, locker, Config{})
	if _, err := s.Trigger(context.Background()); !errors.Is(err, apperrors.ErrRunInProgress) {
		t.Fatalf("Expected ErrRunInProgress, got %v", err)
	}
	if r.calls.Load() != 0 {
		t.Error("runner must not be called while the lock is held")
	}
}

func TestTrigger_PropagatesRunError(t *testing.T) {
	dbErr := apperrors.DatabaseError{Operation: "health", Err: errors.New("down")}
	s := New(&mockRunner{err: dbErr}, nil, Config{})

	report, err := s.Trigger(context.Background())
	if !apperrors.IsStorageFailure(err) {
		t.Fatalf("Expected storage failure, got %v", err)
	}
	if report == nil || report.State != models.RunFailed {
		t.Errorf("Expected partial failed report, got %+v", report)
	}
}

func TestRun_ImmediateAndTicks(t *testing.T) {
	r := &mockRunner{}
	s := New(r, nil, Config{Interval: 10 * time.Millisecond, RunOnStart: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 runs, got %d", r.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRun_NoRunOnStart(t *testing.T) {
	r := &mockRunner{}
	s := New(r, nil, Config{Interval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if r.calls.Load() != 0 {
		t.Errorf("Expected no run before the first tick, got %d", r.calls.Load())
	}
}

func TestRun_OverlappingTriggerSkips(t *testing.T) {
	r := &mockRunner{hold: make(chan struct{})}
	s := New(r, nil, Config{Interval: time.Hour})

	first := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background())
		first <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run did not start")
		}
		time.Sleep(time.Millisecond)
	}

	s.tick(context.Background())
	if r.calls.Load() != 1 {
		t.Errorf("overlapping tick must skip, calls=%d", r.calls.Load())
	}

	close(r.hold)
	if err := <-first; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

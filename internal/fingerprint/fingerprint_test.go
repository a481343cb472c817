package fingerprint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rajasatyajit/brocante/internal/models"
)

var paris = time.FixedZone("CEST", 2*3600)

func event(start time.Time, lat, lon float64) *models.CanonicalEvent {
	return &models.CanonicalEvent{StartAt: start, Latitude: lat, Longitude: lon}
}

func TestRound4(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{43.57160001, "43.5716"},
		{43.5716, "43.5716"},
		{-1.27800002, "-1.2780"},
		{-1.278, "-1.2780"},
		{48.85661, "48.8566"},
		{2.35229999, "2.3522"},
		{0, "0.0000"},
		{-0.00001, "0.0000"},
		{180, "180.0000"},
		{-90, "-90.0000"},
		{43.571699999, "43.5716"},
		{43.5716999, "43.5716"},
		{48.856699996, "48.8566"},
		{-1.278099999, "-1.2780"},
		{1e-7, "0.0000"},
	}

	for _, tt := range tests {
		if got := Round4(tt.in); got != tt.expected {
			t.Errorf("Round4(%v) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestEngine_Compute_NearBoundaryCollides(t *testing.T) {
	engine := New(paris)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, paris)
	a := engine.Compute(event(start, 43.571699999, -1.278099999))
	b := engine.Compute(event(start, 43.5716999, -1.2780999))
	if a != b {
		t.Errorf("Expected coordinates inside one 4th-decimal cell to collide, got %s and %s", a, b)
	}
}

func TestEngine_Compute_Stability(t *testing.T) {
	engine := New(paris)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, paris)

	a := engine.Compute(event(day, 43.57160001, -1.27800002))
	b := engine.Compute(event(day, 43.5716, -1.2780))
	if a != b {
		t.Errorf("Expected equal fingerprints for jittered coordinates, got %s and %s", a, b)
	}

	// Time of day is ignored
	c := engine.Compute(event(day.Add(8*time.Hour), 43.5716, -1.2780))
	if a != c {
		t.Error("Expected time of day not to affect fingerprint")
	}

	// Recomputation is stable
	for i := 0; i < 10; i++ {
		if engine.Compute(event(day, 43.5716, -1.2780)) != a {
			t.Fatal("fingerprint not stable across calls")
		}
	}

	if len(a) != 64 {
		t.Errorf("Expected 64 char hex digest, got %d", len(a))
	}
}

func TestEngine_Compute_Sensitivity(t *testing.T) {
	engine := New(paris)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, paris)

	a := engine.Compute(event(day, 43.5716, -1.2780))
	b := engine.Compute(event(day.AddDate(0, 0, 1), 43.5716, -1.2780))
	if a == b {
		t.Error("Expected different fingerprints one day apart")
	}

	c := engine.Compute(event(day, 43.5717, -1.2780))
	if a == c {
		t.Error("Expected different fingerprints for a 4th decimal change")
	}
}

func TestEngine_Key_UsesConfiguredLocation(t *testing.T) {
	engine := New(paris)
	// 23:30 UTC on May 31 is already June 1 in Paris summer time
	start := time.Date(2025, 5, 31, 23, 30, 0, 0, time.UTC)
	if got := engine.Key(start, 48.8566, 2.3522); got != "2025-06-01|48.8566|2.3522" {
		t.Errorf("unexpected key %q", got)
	}

	utc := New(nil)
	if got := utc.Key(start, 48.8566, 2.3522); got != "2025-05-31|48.8566|2.3522" {
		t.Errorf("unexpected UTC key %q", got)
	}
}

type lookupFunc func(ctx context.Context, fp string) (bool, error)

func (f lookupFunc) ExistsByFingerprint(ctx context.Context, fp string) (bool, error) {
	return f(ctx, fp)
}

func TestEngine_Exists(t *testing.T) {
	engine := New(paris)
	known := map[string]bool{"abc": true}
	store := lookupFunc(func(_ context.Context, fp string) (bool, error) {
		if fp == "boom" {
			return false, errors.New("connection reset")
		}
		return known[fp], nil
	})

	if ok, err := engine.Exists(context.Background(), store, "abc"); err != nil || !ok {
		t.Errorf("Expected known fingerprint, got %v %v", ok, err)
	}
	if ok, err := engine.Exists(context.Background(), store, "def"); err != nil || ok {
		t.Errorf("Expected unknown fingerprint, got %v %v", ok, err)
	}
	if _, err := engine.Exists(context.Background(), store, "boom"); err == nil {
		t.Error("Expected storage error to propagate")
	}
}

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rajasatyajit/brocante/internal/models"
)

func sampleEvent(fp string, day int) *models.CanonicalEvent {
	return &models.CanonicalEvent{
		ID:          "01J" + fp,
		SourceID:    "geo-feed:" + fp,
		SourceName:  models.SourceGeoFeed,
		Title:       "Brocante " + fp,
		Category:    models.CategoryFleaMarket,
		Latitude:    48.8566,
		Longitude:   2.3522,
		StartAt:     time.Date(2025, 9, day, 9, 0, 0, 0, time.UTC),
		EndAt:       time.Date(2025, 9, day, 18, 0, 0, 0, time.UTC),
		Status:      models.StatusPendingReview,
		Fingerprint: fp,
		CreatedAt:   time.Date(2025, 5, 15, 8, 0, 0, 0, time.UTC),
	}
}

func TestInMemoryStore_InsertAndExists(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	exists, err := s.ExistsByFingerprint(ctx, "fp1")
	if err != nil || exists {
		t.Fatalf("Expected empty store, got %v %v", exists, err)
	}

	inserted, err := s.Insert(ctx, sampleEvent("fp1", 10))
	if err != nil || !inserted {
		t.Fatalf("Expected insert, got %v %v", inserted, err)
	}

	exists, _ = s.ExistsByFingerprint(ctx, "fp1")
	if !exists {
		t.Error("Expected fingerprint to exist after insert")
	}

	// second insert with the same fingerprint is a no-op, not an update
	dup := sampleEvent("fp1", 10)
	dup.Title = "Changed"
	inserted, err = s.Insert(ctx, dup)
	if err != nil || inserted {
		t.Errorf("Expected duplicate to be skipped, got %v %v", inserted, err)
	}
	if got := s.Events()[0].Title; got != "Brocante fp1" {
		t.Errorf("Expected original event to be kept, got %q", got)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestInMemoryStore_Events_Ordered(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.Insert(ctx, sampleEvent("c", 20))
	s.Insert(ctx, sampleEvent("a", 5))
	s.Insert(ctx, sampleEvent("b", 12))

	events := s.Events()
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Fingerprint != "a" || events[1].Fingerprint != "b" || events[2].Fingerprint != "c" {
		t.Errorf("Expected events ordered by start, got %s %s %s", events[0].Fingerprint, events[1].Fingerprint, events[2].Fingerprint)
	}
}

func TestInMemoryStore_ConcurrentInsertSameFingerprint(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := s.Insert(ctx, sampleEvent("same", 10))
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winning insert, got %d", wins)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Expected 1 stored event, got %d", n)
	}
}

func TestInMemoryStore_Health(t *testing.T) {
	if err := NewInMemoryStore().Health(context.Background()); err != nil {
		t.Errorf("Expected nil health error, got %v", err)
	}
}

package store

import (
	"context"

	"github.com/rajasatyajit/brocante/internal/models"
)

// Store defines the interface for canonical event storage. Duplicate
// detection is purely by fingerprint: the pipeline never reads events back.
type Store interface {
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	// Insert writes ev unless an event with the same fingerprint is already
	// stored, and reports whether a row was written. The check and the write
	// are atomic.
	Insert(ctx context.Context, ev *models.CanonicalEvent) (bool, error)
	Count(ctx context.Context) (int, error)
	Health(ctx context.Context) error
}

// Database interface for dependency injection
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) interface{}
	Health(ctx context.Context) error
	IsConfigured() bool
}

// Open returns the Postgres store with its schema applied when db is
// configured, and an in-memory store otherwise.
func Open(ctx context.Context, db Database) (Store, error) {
	s := New(db)
	if pg, ok := s.(*PostgresStore); ok {
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// New creates a new store instance
func New(db Database) Store {
	if db.IsConfigured() {
		return NewPostgresStore(db)
	}
	// Fallback to in-memory store if no database
	return NewInMemoryStore()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/models"
)

// SQLiteStore implements Store on an embedded SQLite file, for single node
// deployments without Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path with WAL enabled and
// ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := initSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	source_name TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	start_at TEXT NOT NULL,
	end_at TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	visitor_price TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	fingerprint TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_start_at ON events(start_at);
CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// ExistsByFingerprint reports whether an event with fingerprint is stored
func (s *SQLiteStore) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE fingerprint = ?)`, fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.DatabaseError{Operation: "exists", Err: err}
	}
	return exists, nil
}

// Insert writes ev unless its fingerprint is already stored
func (s *SQLiteStore) Insert(ctx context.Context, ev *models.CanonicalEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			id, source_id, source_name, title, description, category,
			latitude, longitude, start_at, end_at, address, city, postal_code,
			phone, email, website, visitor_price, status, fingerprint, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		ev.ID, ev.SourceID, string(ev.SourceName), ev.Title, ev.Description, string(ev.Category),
		ev.Latitude, ev.Longitude, formatTime(ev.StartAt), formatTime(ev.EndAt),
		ev.Address, ev.City, ev.PostalCode, ev.Phone, ev.Email, ev.Website, ev.VisitorPrice,
		string(ev.Status), ev.Fingerprint, formatTime(ev.CreatedAt),
	)
	if err != nil {
		return false, apperrors.DatabaseError{Operation: "insert", Err: fmt.Errorf("insert event %s: %w", ev.Fingerprint, err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.DatabaseError{Operation: "insert", Err: err}
	}
	return n > 0, nil
}

// Count returns the number of stored events
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, apperrors.DatabaseError{Operation: "count", Err: err}
	}
	return n, nil
}

// Health pings the database
func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.DatabaseError{Operation: "health", Err: err}
	}
	return nil
}

// Get loads a stored event by fingerprint, mainly for inspection and tests
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*models.CanonicalEvent, error) {
	var (
		ev                        models.CanonicalEvent
		sourceName, category      string
		status                    string
		startAt, endAt, createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, source_name, title, description, category,
			latitude, longitude, start_at, end_at, address, city, postal_code,
			phone, email, website, visitor_price, status, fingerprint, created_at
		FROM events WHERE fingerprint = ?`, fingerprint,
	).Scan(
		&ev.ID, &ev.SourceID, &sourceName, &ev.Title, &ev.Description, &category,
		&ev.Latitude, &ev.Longitude, &startAt, &endAt, &ev.Address, &ev.City, &ev.PostalCode,
		&ev.Phone, &ev.Email, &ev.Website, &ev.VisitorPrice, &status, &ev.Fingerprint, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError{Operation: "get", Err: err}
	}

	ev.SourceName = models.SourceName(sourceName)
	ev.Category = models.Category(category)
	ev.Status = models.Status(status)
	if ev.StartAt, err = parseTime(startAt); err != nil {
		return nil, err
	}
	if ev.EndAt, err = parseTime(endAt); err != nil {
		return nil, err
	}
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

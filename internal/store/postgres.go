package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/models"
)

//go:embed postgres_schema.sql
var postgresSchema string

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db Database
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db Database) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertEventSQL = `
	INSERT INTO events (
		id, source_id, source_name, title, description, category,
		latitude, longitude, start_at, end_at, address, city, postal_code,
		phone, email, website, visitor_price, status, fingerprint, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)
	ON CONFLICT (fingerprint) DO NOTHING
	RETURNING id
`

// ExistsByFingerprint reports whether an event with fingerprint is stored
func (s *PostgresStore) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	row, ok := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE fingerprint = $1)`, fingerprint).(pgx.Row)
	if !ok {
		return false, apperrors.DatabaseError{Operation: "exists", Err: fmt.Errorf("invalid row type")}
	}

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, apperrors.DatabaseError{Operation: "exists", Err: err}
	}
	return exists, nil
}

// Insert writes ev unless its fingerprint is already stored. The unique
// index on fingerprint makes concurrent inserts of the same event safe.
func (s *PostgresStore) Insert(ctx context.Context, ev *models.CanonicalEvent) (bool, error) {
	row, ok := s.db.QueryRow(ctx, insertEventSQL,
		ev.ID, ev.SourceID, string(ev.SourceName), ev.Title, ev.Description, string(ev.Category),
		ev.Latitude, ev.Longitude, ev.StartAt, ev.EndAt, ev.Address, ev.City, ev.PostalCode,
		ev.Phone, ev.Email, ev.Website, ev.VisitorPrice, string(ev.Status), ev.Fingerprint, ev.CreatedAt,
	).(pgx.Row)
	if !ok {
		return false, apperrors.DatabaseError{Operation: "insert", Err: fmt.Errorf("invalid row type")}
	}

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.DatabaseError{Operation: "insert", Err: fmt.Errorf("insert event %s: %w", ev.Fingerprint, err)}
	}
	return true, nil
}

// Count returns the number of stored events
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	row, ok := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM events`).(pgx.Row)
	if !ok {
		return 0, apperrors.DatabaseError{Operation: "count", Err: fmt.Errorf("invalid row type")}
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, apperrors.DatabaseError{Operation: "count", Err: err}
	}
	return n, nil
}

// Migrate creates the events table and its indexes if they are missing
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.Exec(ctx, postgresSchema); err != nil {
		return apperrors.DatabaseError{Operation: "migrate", Err: err}
	}
	return nil
}

// Health checks the database connection
func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.db.Health(ctx); err != nil {
		return apperrors.DatabaseError{Operation: "health", Err: err}
	}
	return nil
}

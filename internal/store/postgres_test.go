package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
)

type mockDB struct {
	ExecFn         func(ctx context.Context, sql string, args ...any) error
	QueryRowFn     func(ctx context.Context, sql string, args ...any) interface{}
	HealthFn       func(ctx context.Context) error
	IsConfiguredFn func() bool
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) error {
	if m.ExecFn != nil {
		return m.ExecFn(ctx, sql, args...)
	}
	return nil
}
func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) interface{} {
	if m.QueryRowFn != nil {
		return m.QueryRowFn(ctx, sql, args...)
	}
	return nil
}
func (m *mockDB) Health(ctx context.Context) error {
	if m.HealthFn != nil {
		return m.HealthFn(ctx)
	}
	return nil
}
func (m *mockDB) IsConfigured() bool {
	if m.IsConfiguredFn != nil {
		return m.IsConfiguredFn()
	}
	return true
}

// fakeRow satisfies pgx.Row, copying vals into the scan targets
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *bool:
			*p = r.vals[i].(bool)
		case *int:
			*p = r.vals[i].(int)
		case *string:
			*p = r.vals[i].(string)
		}
	}
	return nil
}

var _ pgx.Row = fakeRow{}

func TestPostgresStore_Insert(t *testing.T) {
	tests := []struct {
		name         string
		row          interface{}
		wantInserted bool
		wantErr      bool
	}{
		{name: "Inserted", row: fakeRow{vals: []any{"01JABC"}}, wantInserted: true},
		{name: "Duplicate", row: fakeRow{err: pgx.ErrNoRows}, wantInserted: false},
		{name: "Failure", row: fakeRow{err: errors.New("connection reset")}, wantErr: true},
		{name: "Invalid row type", row: 123, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSQL string
			var gotArgs []any
			db := &mockDB{QueryRowFn: func(ctx context.Context, sql string, args ...any) interface{} {
				gotSQL = sql
				gotArgs = args
				return tt.row
			}}
			s := NewPostgresStore(db)
			ev := sampleEvent("fp1", 10)

			inserted, err := s.Insert(context.Background(), ev)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !apperrors.IsStorageFailure(err) {
					t.Errorf("Expected DatabaseError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if inserted != tt.wantInserted {
				t.Errorf("inserted=%v want %v", inserted, tt.wantInserted)
			}
			if !strings.Contains(gotSQL, "INSERT INTO events") || !strings.Contains(gotSQL, "ON CONFLICT (fingerprint) DO NOTHING") {
				t.Errorf("unexpected SQL: %s", gotSQL)
			}
			if len(gotArgs) != 20 || gotArgs[18] != "fp1" {
				t.Errorf("unexpected args %v", gotArgs)
			}
		})
	}
}

func TestPostgresStore_ExistsByFingerprint(t *testing.T) {
	db := &mockDB{QueryRowFn: func(ctx context.Context, sql string, args ...any) interface{} {
		if !strings.Contains(sql, "WHERE fingerprint = $1") {
			t.Errorf("unexpected SQL: %s", sql)
		}
		return fakeRow{vals: []any{args[0] == "known"}}
	}}
	s := NewPostgresStore(db)

	if ok, err := s.ExistsByFingerprint(context.Background(), "known"); err != nil || !ok {
		t.Errorf("Expected known, got %v %v", ok, err)
	}
	if ok, err := s.ExistsByFingerprint(context.Background(), "unknown"); err != nil || ok {
		t.Errorf("Expected unknown, got %v %v", ok, err)
	}

	failing := NewPostgresStore(&mockDB{QueryRowFn: func(ctx context.Context, sql string, args ...any) interface{} {
		return fakeRow{err: errors.New("db down")}
	}})
	if _, err := failing.ExistsByFingerprint(context.Background(), "x"); !apperrors.IsStorageFailure(err) {
		t.Errorf("Expected DatabaseError, got %v", err)
	}
}

func TestPostgresStore_Count(t *testing.T) {
	s := NewPostgresStore(&mockDB{QueryRowFn: func(ctx context.Context, sql string, args ...any) interface{} {
		return fakeRow{vals: []any{42}}
	}})
	n, err := s.Count(context.Background())
	if err != nil || n != 42 {
		t.Errorf("Expected 42, got %d %v", n, err)
	}

	unconfigured := NewPostgresStore(&mockDB{})
	if _, err := unconfigured.Count(context.Background()); err == nil {
		t.Error("Expected error when QueryRow returns nil")
	}
}

func TestPostgresStore_Health(t *testing.T) {
	s := NewPostgresStore(&mockDB{HealthFn: func(ctx context.Context) error { return errors.New("down") }})
	err := s.Health(context.Background())
	if err == nil || !apperrors.IsStorageFailure(err) {
		t.Errorf("Expected DatabaseError, got %v", err)
	}
	if err := NewPostgresStore(&mockDB{}).Health(context.Background()); err != nil {
		t.Errorf("Expected healthy, got %v", err)
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	var applied string
	s := NewPostgresStore(&mockDB{ExecFn: func(ctx context.Context, sql string, args ...any) error {
		applied = sql
		return nil
	}})
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS events", "idx_events_fingerprint"} {
		if !strings.Contains(applied, want) {
			t.Errorf("Expected schema to contain %q", want)
		}
	}

	failing := NewPostgresStore(&mockDB{ExecFn: func(ctx context.Context, sql string, args ...any) error {
		return errors.New("permission denied")
	}})
	if err := failing.Migrate(context.Background()); !apperrors.IsStorageFailure(err) {
		t.Errorf("Expected DatabaseError, got %v", err)
	}
}

// Package profile – sqlite.go is the SQLite-backed profile store. It works
// against the central studymate.db opened by the store package; the
// students table must already exist.
package profile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Store persists student profiles in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a profile store over an open database handle.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "profile")}
}

// Get implements the Gateway interface.
func (s *Store) Get(ctx context.Context, studentID string) (*StudentProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, status, credits
		FROM students WHERE id = ?`, studentID)

	var p StudentProfile
	var status string
	if err := row.Scan(&p.ID, &p.DisplayName, &status, &p.Credits); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Status = AccountStatus(status)
	return &p, nil
}

// Upsert registers a student on first contact and keeps the display name
// fresh from the platform push name. Status and credits are only set on
// insert; an existing row keeps its balance.
func (s *Store) Upsert(ctx context.Context, studentID, displayName string, initialCredits int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, display_name, status, credits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE students.display_name END,
			updated_at   = excluded.updated_at`,
		studentID, displayName, string(StatusActive), initialCredits,
		time.Now().UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Debit decrements a student's balance by one, clamped at zero.
func (s *Store) Debit(ctx context.Context, studentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE students SET credits = MAX(credits - 1, 0), updated_at = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), studentID)
	if err != nil {
		return fmt.Errorf("debit credits: %w", err)
	}
	return nil
}

// RefreshAll tops every active student back up to the daily allowance.
// Called by the scheduled refresh job.
func (s *Store) RefreshAll(ctx context.Context, daily int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE students SET credits = ?, updated_at = ?
		WHERE status = ?`,
		daily, time.Now().UTC().Format(time.RFC3339), string(StatusActive))
	if err != nil {
		return 0, fmt.Errorf("refresh credits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

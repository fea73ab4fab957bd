package profile_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/studymate-ai/studymate/pkg/studymate/profile"
	"github.com/studymate-ai/studymate/pkg/studymate/store"
)

func newTestStore(t *testing.T) *profile.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "studymate.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return profile.NewStore(db, nil)
}

func TestGetUnknownStudent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nobody")
	if !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertRegistersAndRefreshesName(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "ali", "Ali", 50); err != nil {
		t.Fatal(err)
	}
	p, err := s.Get(ctx, "ali")
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Ali" || p.Status != profile.StatusActive || p.Credits != 50 {
		t.Errorf("first contact profile wrong: %+v", p)
	}

	// A later contact with a new push name updates the name but not the
	// balance.
	if err := s.Upsert(ctx, "ali", "Ali R.", 50); err != nil {
		t.Fatal(err)
	}
	if err := s.Debit(ctx, "ali"); err != nil {
		t.Fatal(err)
	}
	p, _ = s.Get(ctx, "ali")
	if p.DisplayName != "Ali R." {
		t.Errorf("display name = %q, want refreshed name", p.DisplayName)
	}
	if p.Credits != 49 {
		t.Errorf("credits = %d, want 49", p.Credits)
	}

	// An empty push name must not wipe the stored one.
	if err := s.Upsert(ctx, "ali", "", 50); err != nil {
		t.Fatal(err)
	}
	p, _ = s.Get(ctx, "ali")
	if p.DisplayName != "Ali R." {
		t.Errorf("empty push name wiped stored name: %q", p.DisplayName)
	}
}

func TestDebitClampsAtZero(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, "max", "Max", 1)
	s.Debit(ctx, "max")
	s.Debit(ctx, "max")

	p, err := s.Get(ctx, "max")
	if err != nil {
		t.Fatal(err)
	}
	if p.Credits != 0 {
		t.Errorf("credits = %d, want 0 (never negative)", p.Credits)
	}
}

func TestRefreshAllTopsUpActiveOnly(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, "ali", "Ali", 50)
	for i := 0; i < 5; i++ {
		s.Debit(ctx, "ali")
	}

	n, err := s.RefreshAll(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("refreshed = %d, want 1", n)
	}
	p, _ := s.Get(ctx, "ali")
	if p.Credits != 50 {
		t.Errorf("credits after refresh = %d, want 50", p.Credits)
	}
}

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"jml/internal/domain"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	workspace := t.TempDir()
	conn, err := Open(Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func sampleRun(id string) *domain.TerminationResult {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.TerminationResult{
		RunID:      id,
		TicketID:   "64570",
		Identity:   domain.Identity{Email: "marisa@example.com"},
		Mode:       domain.Production,
		PhaseOrder: []string{"device-lock", "identity"},
		PhaseResults: map[string]*domain.PhaseResult{
			"device-lock": {Phase: "device-lock", Status: domain.StatusSuccess},
			"identity":    {Phase: "identity", Status: domain.StatusFailed, Error: "boom"},
		},
		Errors:          []string{"identity: boom"},
		OverallSuccess:  false,
		StartedAt:       now,
		FinishedAt:      now.Add(3 * time.Second),
		DurationSeconds: 3,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveRun(ctx, sampleRun("run-1")); err != nil {
		t.Fatalf("save run: %v", err)
	}
	got, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Identity.Email != "marisa@example.com" {
		t.Fatalf("email: got %q", got.Identity.Email)
	}
	if got.PhaseResults["identity"].Status != domain.StatusFailed {
		t.Fatalf("identity status: got %s", got.PhaseResults["identity"].Status)
	}
	if got.OverallSuccess {
		t.Fatalf("expected failed run")
	}
}

func TestGetRunNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := sampleRun("run-1")
	second := sampleRun("run-2")
	second.StartedAt = first.StartedAt.Add(time.Minute)
	if err := repo.SaveRun(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.SaveRun(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	runs, err := repo.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Fatalf("expected newest first, got %s", runs[0].ID)
	}
}

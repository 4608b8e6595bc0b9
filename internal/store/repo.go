package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jml/internal/domain"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Repo provides run persistence over an open database handle.
type Repo struct {
	DB *sql.DB
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID              string  `json:"id"`
	TicketID        string  `json:"ticket_id,omitempty"`
	Email           string  `json:"email"`
	Mode            string  `json:"mode"`
	OverallSuccess  bool    `json:"overall_success"`
	StartedAt       string  `json:"started_at"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// RunEvent is one stored progress event.
type RunEvent struct {
	ID      int64  `json:"id"`
	RunID   string `json:"run_id"`
	Phase   string `json:"phase,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	TS      string `json:"ts"`
}

// SaveRun stores the full result plus one row per phase.
func (r Repo) SaveRun(ctx context.Context, res *domain.TerminationResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(id,ticket_id,email,mode,overall_success,started_at,finished_at,duration_seconds,result_json)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		res.RunID, nullable(res.TicketID), res.Identity.Email, string(res.Mode), boolInt(res.OverallSuccess),
		res.StartedAt.UTC().Format(time.RFC3339), res.FinishedAt.UTC().Format(time.RFC3339),
		res.DurationSeconds, string(data)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, name := range res.PhaseOrder {
		pr := res.PhaseResults[name]
		if pr == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO phase_results(run_id,phase,position,status,message,error) VALUES (?,?,?,?,?,?)`,
			res.RunID, name, i, string(pr.Status), pr.Message, pr.Error); err != nil {
			return fmt.Errorf("insert phase %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// GetRun loads a stored run by id.
func (r Repo) GetRun(ctx context.Context, id string) (*domain.TerminationResult, error) {
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT result_json FROM runs WHERE id=?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var res domain.TerminationResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &res, nil
}

// ListRuns returns stored runs, newest first.
func (r Repo) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, ticket_id, email, mode, overall_success, started_at, duration_seconds
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var ticketID sql.NullString
		var success int
		if err := rows.Scan(&s.ID, &ticketID, &s.Email, &s.Mode, &success, &s.StartedAt, &s.DurationSeconds); err != nil {
			return nil, err
		}
		s.TicketID = ticketID.String
		s.OverallSuccess = success != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListEvents returns progress events for a run in insertion order.
func (r Repo) ListEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, run_id, phase, status, message, ts FROM run_events WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunEvent
	for rows.Next() {
		var e RunEvent
		var phase sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &phase, &e.Status, &e.Message, &e.TS); err != nil {
			return nil, err
		}
		e.Phase = phase.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

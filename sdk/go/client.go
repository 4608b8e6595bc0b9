package jmlsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal runs HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID              string  `json:"id"`
	TicketID        string  `json:"ticket_id,omitempty"`
	Email           string  `json:"email"`
	Mode            string  `json:"mode"`
	OverallSuccess  bool    `json:"overall_success"`
	StartedAt       string  `json:"started_at"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// PhaseResult is the outcome of one phase within a run.
type PhaseResult struct {
	Phase      string `json:"phase"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// PlannedAction is one dry-run plan entry.
type PlannedAction struct {
	Phase  string `json:"phase"`
	Detail string `json:"detail"`
}

// Run is the full stored run record.
type Run struct {
	RunID    string `json:"run_id"`
	TicketID string `json:"ticket_id,omitempty"`
	Identity struct {
		Email        string `json:"email"`
		ManagerEmail string `json:"manager_email,omitempty"`
		DisplayName  string `json:"display_name,omitempty"`
	} `json:"identity"`
	Mode            string                  `json:"mode"`
	PhaseOrder      []string                `json:"phase_order"`
	PhaseResults    map[string]*PhaseResult `json:"phase_results"`
	Plan            []PlannedAction         `json:"plan,omitempty"`
	Errors          []string                `json:"errors,omitempty"`
	Warnings        []string                `json:"warnings,omitempty"`
	OverallSuccess  bool                    `json:"overall_success"`
	StartedAt       string                  `json:"started_at"`
	FinishedAt      string                  `json:"finished_at"`
	DurationSeconds float64                 `json:"duration_seconds"`
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

// PlanRequest asks the server for a dry-run plan.
type PlanRequest struct {
	TicketID     string   `json:"ticket_id,omitempty"`
	Email        string   `json:"email"`
	ManagerEmail string   `json:"manager_email,omitempty"`
	Phases       []string `json:"phases,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListRuns returns stored runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	endpoint := "v0/runs"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []RunSummary `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// GetRun fetches one run by id.
func (c *Client) GetRun(ctx context.Context, id string) (Run, error) {
	var resp Run
	endpoint := fmt.Sprintf("v0/runs/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RunEvents returns the progress events recorded for a run.
func (c *Client) RunEvents(ctx context.Context, id string) ([]RunEvent, error) {
	var resp struct {
		Items []RunEvent `json:"items"`
	}
	endpoint := fmt.Sprintf("v0/runs/%s/events", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Plan asks the server for a dry-run termination plan. Nothing is
// executed server side.
func (c *Client) Plan(ctx context.Context, req PlanRequest) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodPost, "v0/plans", req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

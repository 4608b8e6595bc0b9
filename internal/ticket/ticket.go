// Package ticket talks to the service-desk system that termination
// requests arrive through.
package ticket

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

// System is the service-desk collaborator used by the engine.
type System interface {
	FetchTicket(ctx context.Context, id string) (Raw, error)
	UpdateStatus(ctx context.Context, id string, statusID int) error
	AddComment(ctx context.Context, id string, body string) error
	Reassign(ctx context.Context, id string, assignee string) error
}

// Raw is the untyped ticket payload as returned by the service desk.
// Field extraction happens in this package, not in callers.
type Raw map[string]any

// Client is a minimal service-desk HTTP API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient creates a client with sane defaults.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 15 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ticket api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FetchTicket retrieves a ticket by numeric id.
func (c *Client) FetchTicket(ctx context.Context, id string) (Raw, error) {
	var resp Raw
	endpoint := fmt.Sprintf("incidents/%s.json", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateStatus moves a ticket to the given workflow state.
func (c *Client) UpdateStatus(ctx context.Context, id string, statusID int) error {
	body := map[string]any{"incident": map[string]any{"state_id": statusID}}
	endpoint := fmt.Sprintf("incidents/%s.json", url.PathEscape(id))
	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

// AddComment appends a private comment to a ticket.
func (c *Client) AddComment(ctx context.Context, id string, body string) error {
	payload := map[string]any{"comment": map[string]any{"body": body, "is_private": true}}
	endpoint := fmt.Sprintf("incidents/%s/comments.json", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, endpoint, payload, nil)
}

// Reassign hands the ticket to another assignee by email.
func (c *Client) Reassign(ctx context.Context, id string, assignee string) error {
	body := map[string]any{"incident": map[string]any{"assignee": map[string]any{"email": assignee}}}
	endpoint := fmt.Sprintf("incidents/%s.json", url.PathEscape(id))
	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("X-Samanage-Authorization", "Bearer "+c.Token)
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

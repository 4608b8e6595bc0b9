// Package directory talks to the identity provider that holds the
// canonical user records.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jml/internal/domain"
)

// ErrNotFound is returned when a lookup matches no directory user.
var ErrNotFound = errors.New("directory user not found")

// Service is the identity-provider collaborator.
type Service interface {
	FindUserByEmail(ctx context.Context, email string) (domain.DirectoryUser, error)
	FindUserByEmployeeID(ctx context.Context, employeeID string) (domain.DirectoryUser, error)
	SearchByDisplayName(ctx context.Context, name string) ([]domain.DirectoryUser, error)
	IsMemberOfGroup(ctx context.Context, email, group string) (bool, error)
	ManagerOf(ctx context.Context, email string) (domain.DirectoryUser, error)
	DeactivateUser(ctx context.Context, email string) error
	ClearSessions(ctx context.Context, email string) error
	RemoveFromGroups(ctx context.Context, email string) (int, error)
}

// Client is a minimal directory HTTP API client.
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
	return fmt.Sprintf("directory api error: status=%d body=%s", e.StatusCode, e.Body)
}

type userRecord struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Profile struct {
		Email          string `json:"email"`
		DisplayName    string `json:"displayName"`
		EmployeeNumber string `json:"employeeNumber"`
		ManagerID      string `json:"managerId"`
	} `json:"profile"`
}

func (u userRecord) toDomain() domain.DirectoryUser {
	return domain.DirectoryUser{
		ID:          u.ID,
		Email:       strings.ToLower(u.Profile.Email),
		DisplayName: u.Profile.DisplayName,
		EmployeeID:  u.Profile.EmployeeNumber,
		Status:      u.Status,
		ManagerID:   u.Profile.ManagerID,
	}
}

// FindUserByEmail looks up the user whose login email matches exactly.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (domain.DirectoryUser, error) {
	users, err := c.search(ctx, fmt.Sprintf(`profile.email eq "%s"`, email))
	if err != nil {
		return domain.DirectoryUser{}, err
	}
	if len(users) == 0 {
		return domain.DirectoryUser{}, ErrNotFound
	}
	return users[0], nil
}

// FindUserByEmployeeID looks up the user by HR employee number.
func (c *Client) FindUserByEmployeeID(ctx context.Context, employeeID string) (domain.DirectoryUser, error) {
	users, err := c.search(ctx, fmt.Sprintf(`profile.employeeNumber eq "%s"`, employeeID))
	if err != nil {
		return domain.DirectoryUser{}, err
	}
	if len(users) == 0 {
		return domain.DirectoryUser{}, ErrNotFound
	}
	return users[0], nil
}

// SearchByDisplayName returns users whose display name starts with name.
func (c *Client) SearchByDisplayName(ctx context.Context, name string) ([]domain.DirectoryUser, error) {
	return c.search(ctx, fmt.Sprintf(`profile.displayName sw "%s"`, name))
}

// IsMemberOfGroup reports whether the user belongs to the named group.
func (c *Client) IsMemberOfGroup(ctx context.Context, email, group string) (bool, error) {
	user, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	var groups []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	}
	endpoint := fmt.Sprintf("api/v1/users/%s/groups", url.PathEscape(user.ID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &groups); err != nil {
		return false, err
	}
	for _, g := range groups {
		if strings.EqualFold(g.Profile.Name, group) {
			return true, nil
		}
	}
	return false, nil
}

// ManagerOf resolves the user's manager record.
func (c *Client) ManagerOf(ctx context.Context, email string) (domain.DirectoryUser, error) {
	user, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return domain.DirectoryUser{}, err
	}
	if user.ManagerID == "" {
		return domain.DirectoryUser{}, ErrNotFound
	}
	var rec userRecord
	endpoint := fmt.Sprintf("api/v1/users/%s", url.PathEscape(user.ManagerID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &rec); err != nil {
		return domain.DirectoryUser{}, err
	}
	return rec.toDomain(), nil
}

// DeactivateUser suspends the account and revokes its credentials.
func (c *Client) DeactivateUser(ctx context.Context, email string) error {
	user, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("api/v1/users/%s/lifecycle/deactivate", url.PathEscape(user.ID))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// ClearSessions revokes every active session for the user.
func (c *Client) ClearSessions(ctx context.Context, email string) error {
	user, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("api/v1/users/%s/sessions", url.PathEscape(user.ID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// RemoveFromGroups removes the user from every assignable group and
// returns the number removed. Built-in groups are left alone.
func (c *Client) RemoveFromGroups(ctx context.Context, email string) (int, error) {
	user, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	var groups []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	endpoint := fmt.Sprintf("api/v1/users/%s/groups", url.PathEscape(user.ID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &groups); err != nil {
		return 0, err
	}
	removed := 0
	for _, g := range groups {
		if g.Type == "BUILT_IN" {
			continue
		}
		ep := fmt.Sprintf("api/v1/groups/%s/users/%s", url.PathEscape(g.ID), url.PathEscape(user.ID))
		if err := c.do(ctx, http.MethodDelete, ep, nil, nil); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (c *Client) search(ctx context.Context, filter string) ([]domain.DirectoryUser, error) {
	var records []userRecord
	endpoint := "api/v1/users?search=" + url.QueryEscape(filter)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &records); err != nil {
		return nil, err
	}
	users := make([]domain.DirectoryUser, 0, len(records))
	for _, r := range records {
		users = append(users, r.toDomain())
	}
	return users, nil
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
		req.Header.Set("Authorization", "SSWS "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

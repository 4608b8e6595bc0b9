package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Mode selects between planning and mutating execution.
type Mode string

const (
	DryRun     Mode = "dry_run"
	Production Mode = "production"
)

// PhaseStatus is the lifecycle state of a single phase within a run.
type PhaseStatus string

const (
	StatusPending PhaseStatus = "pending"
	StatusRunning PhaseStatus = "running"
	StatusSuccess PhaseStatus = "success"
	StatusFailed  PhaseStatus = "failed"
	StatusSkipped PhaseStatus = "skipped"
	StatusWarning PhaseStatus = "warning"
)

// Terminal reports whether the status can no longer change.
func (s PhaseStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusWarning:
		return true
	}
	return false
}

// ProgressStatus classifies progress events emitted while a run executes.
type ProgressStatus string

const (
	ProgressStarting ProgressStatus = "starting"
	ProgressSuccess  ProgressStatus = "success"
	ProgressError    ProgressStatus = "error"
	ProgressWarning  ProgressStatus = "warning"
	ProgressSkipped  ProgressStatus = "skipped"
	ProgressPlanned  ProgressStatus = "planned"
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether s has local@domain form.
func ValidEmail(s string) bool { return emailRe.MatchString(s) }

// Identity is the canonical user a run acts on. Immutable once resolved.
type Identity struct {
	Email        string `json:"email"`
	ManagerEmail string `json:"manager_email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
}

func (id Identity) Validate() error {
	if id.Email == "" {
		return fmt.Errorf("identity email is required")
	}
	if !ValidEmail(id.Email) {
		return fmt.Errorf("invalid email %q", id.Email)
	}
	if id.ManagerEmail != "" && !ValidEmail(id.ManagerEmail) {
		return fmt.Errorf("invalid manager email %q", id.ManagerEmail)
	}
	return nil
}

// PhaseSpec describes one configured phase in the canonical ordering.
type PhaseSpec struct {
	Name          string `json:"name" yaml:"name"`
	Order         int    `json:"order" yaml:"order"`
	Group         string `json:"group,omitempty" yaml:"group,omitempty"`
	TransfersData bool   `json:"transfers_data,omitempty" yaml:"transfers_data,omitempty"`
}

// Conditional reports whether the phase is gated on access-group membership.
func (p PhaseSpec) Conditional() bool { return p.Group != "" }

// PhaseResult is the outcome of one phase in one run.
type PhaseResult struct {
	Phase      string      `json:"phase"`
	Status     PhaseStatus `json:"status" enum:"pending,running,success,failed,skipped,warning"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at,omitempty"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
}

// PlannedAction is one dry-run plan entry.
type PlannedAction struct {
	Phase  string `json:"phase"`
	Detail string `json:"detail"`
}

// TerminationResult aggregates a full run for one identity.
type TerminationResult struct {
	RunID           string                  `json:"run_id"`
	TicketID        string                  `json:"ticket_id,omitempty"`
	Identity        Identity                `json:"identity"`
	Mode            Mode                    `json:"mode" enum:"dry_run,production"`
	PhaseOrder      []string                `json:"phase_order"`
	PhaseResults    map[string]*PhaseResult `json:"phase_results"`
	Plan            []PlannedAction         `json:"plan,omitempty"`
	Errors          []string                `json:"errors,omitempty"`
	Warnings        []string                `json:"warnings,omitempty"`
	OverallSuccess  bool                    `json:"overall_success"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      time.Time               `json:"finished_at"`
	DurationSeconds float64                 `json:"duration_seconds"`
}

// Failed reports whether any phase ended in failure.
func (r *TerminationResult) Failed() bool {
	for _, pr := range r.PhaseResults {
		if pr.Status == StatusFailed {
			return true
		}
	}
	return false
}

// BatchResult aggregates termination results across many tickets.
type BatchResult struct {
	TicketResults     map[string]*TerminationResult `json:"ticket_results"`
	TicketOrder       []string                      `json:"ticket_order"`
	TotalTickets      int                           `json:"total_tickets"`
	SuccessfulTickets int                           `json:"successful_tickets"`
	FailedTickets     int                           `json:"failed_tickets"`
	SuccessRate       float64                       `json:"success_rate"`
	DurationSeconds   float64                       `json:"duration_seconds"`
	Interrupted       bool                          `json:"interrupted,omitempty"`
}

// Ticket is the parsed view of a service-desk ticket.
type Ticket struct {
	ID           string            `json:"id"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body,omitempty"`
	State        string            `json:"state,omitempty"`
	CatalogItem  string            `json:"catalog_item,omitempty"`
	UserEmail    string            `json:"user_email,omitempty"`
	ManagerEmail string            `json:"manager_email,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// DirectoryUser is an identity-provider record.
type DirectoryUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	EmployeeID  string `json:"employee_id,omitempty"`
	Status      string `json:"status,omitempty"`
	ManagerID   string `json:"manager_id,omitempty"`
}

// DisplayNameFromSubject derives a candidate display name from a ticket
// subject like "Termination - Jane Doe" or "Terminate: Jane Doe".
func DisplayNameFromSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for _, sep := range []string{" - ", ": ", " : "} {
		if i := strings.LastIndex(s, sep); i >= 0 {
			s = s[i+len(sep):]
		}
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "@0123456789") {
		return ""
	}
	return s
}

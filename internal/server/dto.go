package server

import (
	"jml/internal/store"
)

// Request payloads

type PlanRequest struct {
	TicketID     string   `json:"ticket_id,omitempty"`
	Email        string   `json:"email"`
	ManagerEmail string   `json:"manager_email,omitempty"`
	Phases       []string `json:"phases,omitempty"`
}

// Response payloads

type RunListResponse struct {
	Items []store.RunSummary `json:"items"`
}

type RunEventsResponse struct {
	Items []store.RunEvent `json:"items"`
}

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"jml/internal/domain"
	"jml/internal/ticket"
)

// BatchRequest describes a sequential run over several tickets.
type BatchRequest struct {
	TicketIDs    []string
	Mode         domain.Mode
	Phases       []string
	Confirmation string
}

// TerminateBatch processes tickets one at a time. A ticket whose
// identity cannot be resolved fails in isolation without touching any
// adapter. Cancellation returns the partial result accumulated so far.
func (e *Engine) TerminateBatch(ctx context.Context, req BatchRequest) (*domain.BatchResult, error) {
	if req.Mode == domain.Production && req.Confirmation != e.Config.Run.ConfirmationPhrase {
		return nil, ErrConfirmationRequired
	}
	if e.Tickets == nil || e.Resolver == nil {
		return nil, fmt.Errorf("batch runs need a ticket system and a resolver")
	}
	if _, err := e.selectPhases(req.Phases); err != nil {
		return nil, err
	}

	started := e.now()
	batch := &domain.BatchResult{TicketResults: map[string]*domain.TerminationResult{}}

	for i, ticketID := range req.TicketIDs {
		if ctx.Err() != nil {
			batch.Interrupted = true
			break
		}

		res := e.runTicket(ctx, ticketID, req)
		batch.TicketResults[ticketID] = res
		batch.TicketOrder = append(batch.TicketOrder, ticketID)
		if res.OverallSuccess {
			batch.SuccessfulTickets++
		} else {
			batch.FailedTickets++
		}

		if i < len(req.TicketIDs)-1 {
			if d := e.Config.Run.PacingDelay.Std(); d > 0 {
				if err := e.Sleep(ctx, d); err != nil {
					batch.Interrupted = true
					break
				}
			}
		}
	}

	batch.TotalTickets = len(batch.TicketResults)
	if batch.TotalTickets > 0 {
		batch.SuccessRate = float64(batch.SuccessfulTickets) / float64(batch.TotalTickets) * 100
	}
	batch.DurationSeconds = e.now().Sub(started).Seconds()
	return batch, nil
}

func (e *Engine) runTicket(ctx context.Context, ticketID string, req BatchRequest) *domain.TerminationResult {
	raw, err := e.Tickets.FetchTicket(ctx, ticketID)
	if err != nil {
		return e.isolatedFailure(ctx, ticketID, req.Mode, fmt.Sprintf("fetch ticket: %v", err))
	}
	parsed := ticket.Parse(raw, e.Config.Org.Domain)
	if parsed.ID == "" {
		parsed.ID = ticketID
	}

	identity, warnings, err := e.Resolver.Resolve(ctx, parsed)
	if err != nil {
		return e.isolatedFailure(ctx, ticketID, req.Mode, fmt.Sprintf("identity resolution: %v", err))
	}

	res, err := e.Terminate(ctx, Request{
		TicketID:     ticketID,
		Identity:     identity,
		Mode:         req.Mode,
		Phases:       req.Phases,
		Confirmation: req.Confirmation,
		Warnings:     warnings,
	})
	if err != nil {
		return e.isolatedFailure(ctx, ticketID, req.Mode, err.Error())
	}
	return res
}

// isolatedFailure records a ticket that never reached any adapter.
func (e *Engine) isolatedFailure(ctx context.Context, ticketID string, mode domain.Mode, msg string) *domain.TerminationResult {
	now := e.now()
	res := &domain.TerminationResult{
		RunID:        uuid.NewString(),
		TicketID:     ticketID,
		Mode:         mode,
		PhaseResults: map[string]*domain.PhaseResult{},
		Errors:       []string{msg},
		StartedAt:    now,
		FinishedAt:   now,
	}
	e.emit(ctx, res, "", domain.ProgressError, msg)
	if e.Store.DB != nil {
		_ = e.Store.SaveRun(ctx, res)
	}
	return res
}

// Package engine sequences termination phases across registered
// service adapters and aggregates the per-phase outcomes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"jml/internal/adapter"
	"jml/internal/config"
	"jml/internal/domain"
	"jml/internal/events"
	"jml/internal/notify"
	"jml/internal/store"
	"jml/internal/ticket"
)

var (
	// ErrConfirmationRequired gates production runs behind the
	// configured confirmation phrase.
	ErrConfirmationRequired = errors.New("production run requires the confirmation phrase")

	// ErrUnknownPhase is returned when a requested phase is not in the
	// configured ordering.
	ErrUnknownPhase = errors.New("unknown phase")
)

// IdentityResolver turns a parsed ticket into a verified identity.
// Warnings carry non-fatal resolution notes, like a missing manager.
type IdentityResolver interface {
	Resolve(ctx context.Context, t domain.Ticket) (domain.Identity, []string, error)
}

// Engine runs terminations. Collaborators are injected; Now and Sleep
// exist so tests control time.
type Engine struct {
	Config   *config.Config
	Adapters *adapter.Registry
	Tickets  ticket.System
	Resolver IdentityResolver
	Notifier notify.Notifier
	Sink     events.Sink
	Store    store.Repo
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

// New builds an engine with default time functions.
func New(cfg *config.Config, reg *adapter.Registry) *Engine {
	return &Engine{
		Config:   cfg,
		Adapters: reg,
		Notifier: notify.Nop{},
		Sink:     events.Nop{},
		Now:      time.Now,
		Sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request describes one termination run for an already-resolved
// identity. Warnings seed the result's warning list, typically with
// notes from identity resolution.
type Request struct {
	TicketID     string
	Identity     domain.Identity
	Mode         domain.Mode
	Phases       []string
	Confirmation string
	Warnings     []string
}

// Terminate runs the phase sequence for one identity. Phase failures
// never abort the run; the error return covers preconditions only.
func (e *Engine) Terminate(ctx context.Context, req Request) (*domain.TerminationResult, error) {
	if err := req.Identity.Validate(); err != nil {
		return nil, err
	}
	if req.Mode == domain.Production && req.Confirmation != e.Config.Run.ConfirmationPhrase {
		return nil, ErrConfirmationRequired
	}

	order, err := e.selectPhases(req.Phases)
	if err != nil {
		return nil, err
	}

	started := e.now()
	res := &domain.TerminationResult{
		RunID:        uuid.NewString(),
		TicketID:     req.TicketID,
		Identity:     req.Identity,
		Mode:         req.Mode,
		PhaseOrder:   order,
		PhaseResults: map[string]*domain.PhaseResult{},
		Warnings:     append([]string(nil), req.Warnings...),
		StartedAt:    started,
	}
	for _, name := range order {
		res.PhaseResults[name] = &domain.PhaseResult{Phase: name, Status: domain.StatusPending}
	}

	for _, name := range order {
		e.runPhase(ctx, req, res, name)
	}

	res.FinishedAt = e.now()
	res.DurationSeconds = res.FinishedAt.Sub(started).Seconds()
	res.OverallSuccess = !res.Failed()

	if req.Mode == domain.Production {
		e.closeOut(ctx, res)
	}
	if e.Store.DB != nil {
		if err := e.Store.SaveRun(ctx, res); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("run not persisted: %v", err))
		}
	}
	return res, nil
}

// selectPhases returns the requested subset in canonical order, or the
// full canonical order when no subset is given.
func (e *Engine) selectPhases(requested []string) ([]string, error) {
	canonical := e.Config.PhaseOrder()
	if len(requested) == 0 {
		return canonical, nil
	}
	want := map[string]bool{}
	for _, name := range requested {
		if _, ok := e.Config.PhaseSpec(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, name)
		}
		want[name] = true
	}
	var order []string
	for _, name := range canonical {
		if want[name] {
			order = append(order, name)
		}
	}
	return order, nil
}

func (e *Engine) runPhase(ctx context.Context, req Request, res *domain.TerminationResult, name string) {
	pr := res.PhaseResults[name]
	a, ok := e.Adapters.Get(name)
	if !ok {
		e.fail(ctx, res, pr, fmt.Sprintf("no adapter registered for %s", name))
		return
	}

	if req.Mode == domain.Production {
		pr.Status = domain.StatusRunning
		pr.StartedAt = e.now()
		e.emit(ctx, res, name, domain.ProgressStarting, "")
	}

	// Applicability is read only, so it gates dry runs too. A check
	// that errors fails the phase conservatively and leaves a warning,
	// since the user may or may not hold the access.
	if checker, ok := a.(adapter.ConditionChecker); ok {
		applicable, err := checker.IsApplicable(ctx, req.Identity)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: could not determine applicability, treating as failed: %v", name, err))
			e.fail(ctx, res, pr, fmt.Sprintf("applicability check: %v", err))
			return
		}
		if !applicable {
			pr.Status = domain.StatusSkipped
			pr.Message = "not applicable for this user"
			e.emit(ctx, res, name, domain.ProgressSkipped, pr.Message)
			return
		}
	}

	if req.Mode == domain.DryRun {
		detail := adapter.PlanDetail(a, req.Identity)
		res.Plan = append(res.Plan, domain.PlannedAction{Phase: name, Detail: detail})
		e.emit(ctx, res, name, domain.ProgressPlanned, detail)
		return
	}

	transferWarned := false
	if t, ok := a.(adapter.DataTransferrer); ok && req.Identity.ManagerEmail != "" {
		msg, err := e.callTransfer(ctx, t, req.Identity)
		if err != nil {
			w := fmt.Sprintf("%s: data transfer failed: %v", name, err)
			res.Warnings = append(res.Warnings, w)
			e.emit(ctx, res, name, domain.ProgressWarning, w)
			transferWarned = true
		} else if msg != "" {
			pr.Message = msg
		}
	}

	msg, err := e.callExecute(ctx, a, req.Identity)
	pr.FinishedAt = e.now()
	if err != nil {
		pr.Status = domain.StatusFailed
		pr.Error = err.Error()
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
		e.emit(ctx, res, name, domain.ProgressError, err.Error())
		return
	}
	if msg != "" {
		if pr.Message != "" {
			pr.Message += "; "
		}
		pr.Message += msg
	}
	if transferWarned {
		pr.Status = domain.StatusWarning
		e.emit(ctx, res, name, domain.ProgressWarning, pr.Message)
		return
	}
	pr.Status = domain.StatusSuccess
	e.emit(ctx, res, name, domain.ProgressSuccess, pr.Message)
}

// callExecute invokes the adapter under the phase timeout, converting
// panics into phase failures so one adapter cannot kill the run.
func (e *Engine) callExecute(ctx context.Context, a adapter.Adapter, id domain.Identity) (msg string, err error) {
	ctx, cancel := e.phaseContext(ctx)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return a.Execute(ctx, id)
}

func (e *Engine) callTransfer(ctx context.Context, t adapter.DataTransferrer, id domain.Identity) (msg string, err error) {
	ctx, cancel := e.phaseContext(ctx)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return t.TransferData(ctx, id)
}

func (e *Engine) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := e.Config.Run.PhaseTimeout.Std(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) fail(ctx context.Context, res *domain.TerminationResult, pr *domain.PhaseResult, msg string) {
	pr.Status = domain.StatusFailed
	pr.Error = msg
	res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", pr.Phase, msg))
	e.emit(ctx, res, pr.Phase, domain.ProgressError, msg)
}

// closeOut updates the source ticket and sends the completion
// notification. Both are best effort; failures become warnings.
func (e *Engine) closeOut(ctx context.Context, res *domain.TerminationResult) {
	if e.Tickets != nil && res.TicketID != "" {
		if err := e.Tickets.AddComment(ctx, res.TicketID, Summary(res)); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("ticket comment failed: %v", err))
		}
		if res.OverallSuccess && e.Config.Tickets.ClosedStatusID != 0 {
			if err := e.Tickets.UpdateStatus(ctx, res.TicketID, e.Config.Tickets.ClosedStatusID); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("ticket status update failed: %v", err))
			}
		}
	}
	if e.Notifier != nil {
		if err := e.Notifier.Notify(ctx, Summary(res)); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("notification failed: %v", err))
		}
	}
}

// Summary renders a short human-readable run summary.
func Summary(res *domain.TerminationResult) string {
	var b strings.Builder
	verdict := "completed"
	if !res.OverallSuccess {
		verdict = "completed with failures"
	}
	fmt.Fprintf(&b, "Termination %s for %s", verdict, res.Identity.Email)
	if res.TicketID != "" {
		fmt.Fprintf(&b, " (ticket %s)", res.TicketID)
	}
	b.WriteString("\n")
	for _, name := range res.PhaseOrder {
		pr := res.PhaseResults[name]
		fmt.Fprintf(&b, "- %s: %s", name, pr.Status)
		if pr.Error != "" {
			fmt.Fprintf(&b, " (%s)", pr.Error)
		}
		b.WriteString("\n")
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return b.String()
}

// TestConnectivity checks every registered adapter and returns the
// per-phase outcome.
func (e *Engine) TestConnectivity(ctx context.Context) map[string]error {
	out := map[string]error{}
	for _, name := range e.Adapters.Names() {
		a, _ := e.Adapters.Get(name)
		out[name] = a.TestConnectivity(ctx)
	}
	return out
}

func (e *Engine) emit(ctx context.Context, res *domain.TerminationResult, phase string, status domain.ProgressStatus, msg string) {
	if e.Sink == nil {
		return
	}
	e.Sink.Emit(ctx, events.Event{
		RunID:    res.RunID,
		TicketID: res.TicketID,
		Phase:    phase,
		Status:   status,
		Message:  msg,
		TS:       e.now(),
	})
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Package events carries run progress to whoever is listening: the
// CLI printer, the sqlite audit log, or both.
package events

import (
	"context"
	"time"

	"jml/internal/domain"
)

// Event is one progress notification from a running termination.
type Event struct {
	RunID    string                `json:"run_id"`
	TicketID string                `json:"ticket_id,omitempty"`
	Phase    string                `json:"phase,omitempty"`
	Status   domain.ProgressStatus `json:"status"`
	Message  string                `json:"message,omitempty"`
	TS       time.Time             `json:"ts"`
}

// Sink receives progress events. Implementations must not block the
// run on delivery failures.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards events.
type Nop struct{}

func (Nop) Emit(ctx context.Context, e Event) {}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, e Event) {
	for _, s := range f {
		s.Emit(ctx, e)
	}
}

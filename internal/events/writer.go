package events

import (
	"context"
	"database/sql"
	"time"
)

// Writer appends progress events to the sqlite audit log. Delivery is
// best effort; a write failure never fails the run.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Emit(ctx context.Context, e Event) {
	ts := e.TS
	if ts.IsZero() {
		now := w.Now
		if now == nil {
			now = time.Now
		}
		ts = now()
	}
	_, _ = w.DB.ExecContext(ctx,
		`INSERT INTO run_events(run_id,ticket_id,phase,status,message,ts) VALUES (?,?,?,?,?,?)`,
		e.RunID, nullable(e.TicketID), nullable(e.Phase), string(e.Status), e.Message,
		ts.UTC().Format(time.RFC3339))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

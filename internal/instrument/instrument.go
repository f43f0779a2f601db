// Package instrument is the observer hook around background jobs.
// Observers receive fire-and-forget events; none of them is required
// for correctness and a failing sink never fails a job.
package instrument

import (
	"context"
	"time"

	"github.com/profile-enricher/internal/models"
)

// Outcomes reported by the job layer.
const (
	OutcomeRefreshed = "refreshed"
	OutcomeCreated   = "created"
	OutcomeSkipped   = "skipped"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeVanished  = "vanished"
)

// Event describes one job execution.
type Event struct {
	Name        string
	Kind        models.ServiceKind
	SubjectType string
	SubjectID   string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     string
	Error       string
}

// Duration returns the job's wall time.
func (e Event) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Observer receives job events.
type Observer interface {
	Publish(ctx context.Context, e Event)
}

// Noop discards all events.
type Noop struct{}

// Publish implements Observer.
func (Noop) Publish(ctx context.Context, e Event) {}

// Fanout publishes each event to every observer in order.
type Fanout []Observer

// Publish implements Observer.
func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, o := range f {
		o.Publish(ctx, e)
	}
}

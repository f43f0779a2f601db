package orchestrator

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/instrument"
	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/queue"
)

// ErrorHandler inspects a failed refresh and reports whether it
// claimed the error. An unclaimed error fails the job invocation.
type ErrorHandler func(ctx context.Context, job models.RefreshJob, err error) bool

// Performer executes dequeued jobs. It wraps the orchestrator with
// instrumentation, the transient-retry contract and the caller
// supplied error handler chain.
type Performer struct {
	orch       *Orchestrator
	observer   instrument.Observer
	handlers   []ErrorHandler
	retryDelay time.Duration
	logger     *logging.Logger

	now func() time.Time
}

// NewPerformer creates a job performer. A nil observer is replaced
// with a no-op sink.
func NewPerformer(orch *Orchestrator, observer instrument.Observer, retryDelay time.Duration, logger *logging.Logger, handlers ...ErrorHandler) *Performer {
	if observer == nil {
		observer = instrument.Noop{}
	}
	return &Performer{
		orch:       orch,
		observer:   observer,
		handlers:   handlers,
		retryDelay: retryDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// Perform dispatches a dequeued envelope to its job implementation.
func (p *Performer) Perform(ctx context.Context, env *queue.Envelope) error {
	switch env.JobKind {
	case models.JobKindRefresh:
		var job models.RefreshJob
		if err := env.Decode(&job); err != nil {
			return fmt.Errorf("failed to decode refresh job: %w", err)
		}
		return p.PerformRefresh(ctx, job)
	case models.JobKindCreateServices:
		var job models.CreateServicesJob
		if err := env.Decode(&job); err != nil {
			return fmt.Errorf("failed to decode create services job: %w", err)
		}
		return p.PerformCreateServices(ctx, job)
	default:
		return apperrors.NewInternalError(fmt.Sprintf("unknown job kind %q", env.JobKind), nil)
	}
}

// PerformRefresh runs one refresh job. A subject or record deleted
// between enqueue and dequeue is an expected race and a silent no-op.
// A transient fetch failure re-enqueues the identical job exactly
// once; any other failure runs through the handler chain and fails the
// invocation if no handler claims it.
func (p *Performer) PerformRefresh(ctx context.Context, job models.RefreshJob) error {
	event := instrument.Event{
		Name:        models.JobKindRefresh,
		Kind:        job.Kind,
		SubjectType: job.SubjectType,
		SubjectID:   job.SubjectID,
		StartedAt:   p.now(),
	}
	defer func() {
		event.FinishedAt = p.now()
		p.observer.Publish(ctx, event)
	}()

	if _, err := p.orch.subjects.Find(ctx, job.SubjectType, job.SubjectID); err != nil {
		if apperrors.IsNotFound(err) {
			event.Outcome = instrument.OutcomeVanished
			return nil
		}
		event.Outcome = instrument.OutcomeFailed
		event.Error = err.Error()
		return err
	}

	rec, err := p.orch.records.FindBySubject(ctx, job.Kind, job.SubjectType, job.SubjectID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			event.Outcome = instrument.OutcomeVanished
			return nil
		}
		event.Outcome = instrument.OutcomeFailed
		event.Error = err.Error()
		return err
	}

	result, err := p.orch.RefreshOnce(ctx, rec, false)
	if err == nil {
		switch result {
		case ResultSkipped:
			event.Outcome = instrument.OutcomeSkipped
		default:
			event.Outcome = instrument.OutcomeRefreshed
		}
		return nil
	}

	event.Error = err.Error()

	if apperrors.IsTransient(err) {
		event.Outcome = instrument.OutcomeRetried
		if requeueErr := p.requeue(ctx, job); requeueErr != nil {
			event.Outcome = instrument.OutcomeFailed
			return requeueErr
		}
		p.logger.WithError(err).
			WithFields(map[string]interface{}{"kind": job.Kind, "subjectId": job.SubjectID}).
			Warn("Transient refresh failure, job re-enqueued")
		return nil
	}

	for _, handler := range p.handlers {
		if handler(ctx, job, err) {
			event.Outcome = instrument.OutcomeFailed
			return nil
		}
	}

	event.Outcome = instrument.OutcomeFailed
	return err
}

// requeue submits the identical job arguments once, after the
// configured delay. One failure occurrence produces exactly one new
// submission.
func (p *Performer) requeue(ctx context.Context, job models.RefreshJob) error {
	desc, err := p.orch.table.Lookup(job.Kind)
	if err != nil {
		return err
	}
	return p.orch.queue.EnqueueIn(ctx, p.retryDelay, desc.Queue, models.JobKindRefresh, job)
}

// PerformCreateServices materializes service records for a subject. A
// subject deleted before the job ran is a silent no-op.
func (p *Performer) PerformCreateServices(ctx context.Context, job models.CreateServicesJob) error {
	event := instrument.Event{
		Name:        models.JobKindCreateServices,
		SubjectType: job.SubjectType,
		SubjectID:   job.SubjectID,
		StartedAt:   p.now(),
	}
	defer func() {
		event.FinishedAt = p.now()
		p.observer.Publish(ctx, event)
	}()

	sub, err := p.orch.subjects.Find(ctx, job.SubjectType, job.SubjectID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			event.Outcome = instrument.OutcomeVanished
			return nil
		}
		event.Outcome = instrument.OutcomeFailed
		event.Error = err.Error()
		return err
	}

	created, err := p.orch.CreateServicesFor(ctx, sub)
	if err != nil {
		event.Outcome = instrument.OutcomeFailed
		event.Error = err.Error()
		return err
	}

	event.Outcome = instrument.OutcomeCreated
	p.logger.WithFields(map[string]interface{}{
		"subjectType": sub.Type,
		"subjectId":   sub.ID,
		"created":     len(created),
	}).Info("Created service records for subject")
	return nil
}

// Package orchestrator drives the refresh work-state machine: opening
// and closing the working bracket on service records, deciding whether
// a refresh is due, and submitting refresh jobs to the queue.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/policy"
	"github.com/profile-enricher/internal/registry"
)

// RecordStore is the persistence surface the orchestrator needs from
// the service record repository.
type RecordStore interface {
	Create(ctx context.Context, rec *models.ServiceRecord) error
	FindBySubject(ctx context.Context, kind models.ServiceKind, subjectType, subjectID string) (*models.ServiceRecord, error)
	SetStartedWorking(ctx context.Context, id string, t time.Time) (bool, error)
	SetFinishedWorking(ctx context.Context, id string, t time.Time) (bool, error)
	SetRefreshed(ctx context.Context, id string, t time.Time, payload []byte) (bool, error)
	SetDisabledAt(ctx context.Context, id string, t *time.Time) error
}

// SubjectResolver looks up subjects by their composite key.
type SubjectResolver interface {
	Find(ctx context.Context, subjectType, subjectID string) (*models.Subject, error)
}

// Enqueuer submits jobs to named queues.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, jobKind string, args interface{}) error
	EnqueueIn(ctx context.Context, delay time.Duration, queueName, jobKind string, args interface{}) error
}

// Orchestrator coordinates record state transitions, refresh execution
// and job submission for every registered service kind.
type Orchestrator struct {
	records  RecordStore
	subjects SubjectResolver
	queue    Enqueuer
	table    *registry.Table
	logger   *logging.Logger

	// now is swapped in tests.
	now func() time.Time
}

// New creates an orchestrator over the given collaborators.
func New(records RecordStore, subjects SubjectResolver, queue Enqueuer, table *registry.Table, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		records:  records,
		subjects: subjects,
		queue:    queue,
		table:    table,
		logger:   logger,
		now:      time.Now,
	}
}

// Table returns the registered service table.
func (o *Orchestrator) Table() *registry.Table {
	return o.table
}

// MarkWorking opens the working bracket on the record, persisting
// immediately so the transition is visible before the fetch runs.
func (o *Orchestrator) MarkWorking(ctx context.Context, rec *models.ServiceRecord) error {
	t := o.now()
	found, err := o.records.SetStartedWorking(ctx, rec.ID, t)
	if err != nil {
		return err
	}
	if found {
		rec.StartedWorkingAt = &t
	}
	return nil
}

// MarkFinished closes the working bracket. The refresh itself may have
// destroyed the record mid-cycle; a vanished record is a no-op, not an
// error.
func (o *Orchestrator) MarkFinished(ctx context.Context, rec *models.ServiceRecord) error {
	t := o.now()
	found, err := o.records.SetFinishedWorking(ctx, rec.ID, t)
	if err != nil {
		return err
	}
	if found {
		rec.FinishedWorkingAt = &t
	}
	return nil
}

// Refresh outcomes reported by RefreshOnce.
const (
	ResultRefreshed = "refreshed"
	ResultSkipped   = "skipped"
)

// RefreshOnce runs one refresh cycle on the record. The working
// bracket is closed on every exit path, so a failed fetch still leaves
// the record finished; only a successful fetch moves LastRefreshedAt.
func (o *Orchestrator) RefreshOnce(ctx context.Context, rec *models.ServiceRecord, forced bool) (string, error) {
	desc, err := o.table.Lookup(rec.Kind)
	if err != nil {
		return "", err
	}

	if !policy.ShouldRefresh(rec, desc.RefreshInterval, o.now(), forced) {
		return ResultSkipped, nil
	}

	if err := o.MarkWorking(ctx, rec); err != nil {
		return "", err
	}
	defer func() {
		if finishErr := o.MarkFinished(ctx, rec); finishErr != nil {
			o.logger.WithError(finishErr).WithField("recordId", rec.ID).Error("Failed to close working bracket")
		}
	}()

	payload, err := desc.Source.Fetch(ctx, rec.Identifier)
	if err != nil {
		return "", err
	}

	t := o.now()
	found, err := o.records.SetRefreshed(ctx, rec.ID, t, payload)
	if err != nil {
		return "", err
	}
	if found {
		rec.LastRefreshedAt = &t
		rec.Payload = payload
	}
	return ResultRefreshed, nil
}

// EnqueueRefresh submits a refresh job for the record onto its
// service's queue. Inactive records (disabled or without identifier)
// are not enqueued and the call reports false.
func (o *Orchestrator) EnqueueRefresh(ctx context.Context, rec *models.ServiceRecord) (bool, error) {
	if !policy.Active(rec) {
		return false, nil
	}

	desc, err := o.table.Lookup(rec.Kind)
	if err != nil {
		return false, err
	}

	job := models.RefreshJob{
		Kind:        rec.Kind,
		SubjectType: rec.SubjectType,
		SubjectID:   rec.SubjectID,
	}
	if err := o.queue.Enqueue(ctx, desc.Queue, models.JobKindRefresh, job); err != nil {
		return false, err
	}
	return true, nil
}

// Enable clears the record's disabled flag. Takes effect on the next
// scheduling decision; an in-flight job is not touched.
func (o *Orchestrator) Enable(ctx context.Context, rec *models.ServiceRecord) error {
	if err := o.records.SetDisabledAt(ctx, rec.ID, nil); err != nil {
		return err
	}
	rec.DisabledAt = nil
	return nil
}

// Disable stops future scheduling of the record.
func (o *Orchestrator) Disable(ctx context.Context, rec *models.ServiceRecord) error {
	t := o.now()
	if err := o.records.SetDisabledAt(ctx, rec.ID, &t); err != nil {
		return err
	}
	rec.DisabledAt = &t
	return nil
}

// EnqueueCreateServices schedules record materialization for a freshly
// created subject.
func (o *Orchestrator) EnqueueCreateServices(ctx context.Context, sub *models.Subject) error {
	job := models.CreateServicesJob{SubjectType: sub.Type, SubjectID: sub.ID}
	return o.queue.Enqueue(ctx, models.QueueServices, models.JobKindCreateServices, job)
}

// CreateServicesFor materializes a service record for every registered
// kind the subject carries an identifier for, and enqueues the first
// refresh of each. An identifier that fails validation is skipped.
func (o *Orchestrator) CreateServicesFor(ctx context.Context, sub *models.Subject) ([]*models.ServiceRecord, error) {
	var created []*models.ServiceRecord
	for _, kind := range o.table.Kinds() {
		desc, err := o.table.Lookup(kind)
		if err != nil {
			return created, err
		}

		identifier := desc.Identifier(sub)
		if identifier == "" {
			continue
		}

		existing, err := o.records.FindBySubject(ctx, kind, sub.Type, sub.ID)
		if err != nil && !apperrors.IsNotFound(err) {
			return created, err
		}
		if existing != nil {
			continue
		}

		if err := o.ValidateIdentifier(ctx, kind, identifier); err != nil {
			o.logger.WithError(err).
				WithFields(map[string]interface{}{"kind": kind, "identifier": identifier}).
				Warn("Skipping service with invalid identifier")
			continue
		}

		rec := &models.ServiceRecord{
			ID:          uuid.New().String(),
			Kind:        kind,
			SubjectType: sub.Type,
			SubjectID:   sub.ID,
			Identifier:  identifier,
		}
		if err := o.records.Create(ctx, rec); err != nil {
			return created, err
		}
		created = append(created, rec)

		if _, err := o.EnqueueRefresh(ctx, rec); err != nil {
			return created, err
		}
	}
	return created, nil
}

// ValidateIdentifier probes the data source for the identifier. The
// probe fails closed only on a definitive not-found or validation
// answer; rate limits, auth failures and upstream flakiness fail open
// so a degraded API never blocks subject writes.
func (o *Orchestrator) ValidateIdentifier(ctx context.Context, kind models.ServiceKind, identifier string) error {
	desc, err := o.table.Lookup(kind)
	if err != nil {
		return err
	}

	err = desc.Source.Probe(ctx, identifier)
	if err == nil {
		return nil
	}
	if apperrors.FailOpen(err) {
		o.logger.WithError(err).
			WithFields(map[string]interface{}{"kind": kind, "identifier": identifier}).
			Warn("Identifier probe inconclusive, accepting")
		return nil
	}
	if apperrors.IsNotFound(err) {
		return apperrors.NewValidationError(string(kind), identifier, "no account found for identifier")
	}
	return err
}

package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/instrument"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/queue"
)

// recordingObserver captures every published event.
type recordingObserver struct {
	events []instrument.Event
}

func (o *recordingObserver) Publish(ctx context.Context, e instrument.Event) {
	o.events = append(o.events, e)
}

type performerFixture struct {
	store    *fakeRecordStore
	resolver *fakeResolver
	queue    *fakeQueue
	source   *fakeSource
	observer *recordingObserver
	perform  *Performer
}

func newPerformerFixture(t *testing.T, src *fakeSource, handlers ...ErrorHandler) *performerFixture {
	t.Helper()
	rec := staleRecord()
	f := &performerFixture{
		store: newFakeRecordStore(rec),
		resolver: &fakeResolver{subjects: map[string]*models.Subject{
			"user/u-1": {
				ID:          "u-1",
				Type:        "user",
				Identifiers: map[models.ServiceKind]string{models.KindGitHub: "octocat"},
			},
		}},
		queue:    &fakeQueue{},
		source:   src,
		observer: &recordingObserver{},
	}
	orch := New(f.store, f.resolver, f.queue, testTable(t, src), testLogger())
	f.perform = NewPerformer(orch, f.observer, time.Minute, testLogger(), handlers...)
	return f
}

func refreshJob() models.RefreshJob {
	return models.RefreshJob{Kind: models.KindGitHub, SubjectType: "user", SubjectID: "u-1"}
}

func TestPerformRefresh_Success(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{payload: json.RawMessage(`{"login":"octocat"}`)})

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.fetches)

	require.Len(t, f.observer.events, 1)
	event := f.observer.events[0]
	assert.Equal(t, instrument.OutcomeRefreshed, event.Outcome)
	assert.Equal(t, models.KindGitHub, event.Kind)
	assert.False(t, event.FinishedAt.Before(event.StartedAt))
}

func TestPerformRefresh_SkippedWhenFresh(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{payload: json.RawMessage(`{}`)})
	recent := time.Now().Add(-time.Hour)
	f.store.records["rec-1"].LastRefreshedAt = &recent

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	require.NoError(t, err)
	assert.Equal(t, 0, f.source.fetches)
	require.Len(t, f.observer.events, 1)
	assert.Equal(t, instrument.OutcomeSkipped, f.observer.events[0].Outcome)
}

func TestPerformRefresh_VanishedSubjectIsSilent(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{})
	f.resolver.subjects = nil

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	require.NoError(t, err)
	assert.Equal(t, 0, f.source.fetches)
	require.Len(t, f.observer.events, 1)
	assert.Equal(t, instrument.OutcomeVanished, f.observer.events[0].Outcome)
}

func TestPerformRefresh_VanishedRecordIsSilent(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{})
	delete(f.store.records, "rec-1")

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	require.NoError(t, err)
	require.Len(t, f.observer.events, 1)
	assert.Equal(t, instrument.OutcomeVanished, f.observer.events[0].Outcome)
}

func TestPerformRefresh_TransientFailureRequeuesOnce(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{
		fetchErr: apperrors.NewTransientFetchError("github", context.DeadlineExceeded),
	})

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	require.NoError(t, err, "a transient failure is handled, not propagated")

	require.Len(t, f.queue.delayed, 1, "exactly one re-submission per failure occurrence")
	assert.Empty(t, f.queue.jobs)
	assert.Equal(t, time.Minute, f.queue.delayed[0].delay)
	assert.Equal(t, models.QueueRefresh, f.queue.delayed[0].queueName)
	assert.Equal(t, refreshJob(), f.queue.delayed[0].args.(models.RefreshJob), "retry carries identical args")

	require.Len(t, f.observer.events, 1)
	assert.Equal(t, instrument.OutcomeRetried, f.observer.events[0].Outcome)

	// The bracket still closed around the failed fetch.
	assert.True(t, f.store.records["rec-1"].Finished())
}

func TestPerformRefresh_NonTransientFailureDoesNotRequeue(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{
		fetchErr: apperrors.NewRateLimitError("github", 60),
	})

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	require.Error(t, err)
	assert.Empty(t, f.queue.delayed, "only the transient allow-list retries")
	require.Len(t, f.observer.events, 1)
	assert.Equal(t, instrument.OutcomeFailed, f.observer.events[0].Outcome)
}

func TestPerformRefresh_HandlerChainClaimsError(t *testing.T) {
	var seen []error
	claiming := func(ctx context.Context, job models.RefreshJob, err error) bool {
		seen = append(seen, err)
		return true
	}

	f := newPerformerFixture(t, &fakeSource{
		fetchErr: apperrors.NewAuthError("github"),
	}, claiming)

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	assert.NoError(t, err, "a claimed error does not fail the job")
	require.Len(t, seen, 1)
	assert.True(t, apperrors.FailOpen(seen[0]))
}

func TestPerformRefresh_UnclaimedErrorPropagates(t *testing.T) {
	declining := func(ctx context.Context, job models.RefreshJob, err error) bool { return false }

	f := newPerformerFixture(t, &fakeSource{
		fetchErr: apperrors.NewAuthError("github"),
	}, declining)

	err := f.perform.PerformRefresh(context.Background(), refreshJob())
	require.Error(t, err)
}

func TestPerformCreateServices(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{payload: json.RawMessage(`{}`)})
	delete(f.store.records, "rec-1")

	job := models.CreateServicesJob{SubjectType: "user", SubjectID: "u-1"}
	err := f.perform.PerformCreateServices(context.Background(), job)
	require.NoError(t, err)

	_, err = f.store.FindBySubject(context.Background(), models.KindGitHub, "user", "u-1")
	require.NoError(t, err)

	require.Len(t, f.observer.events, 1)
	assert.Equal(t, instrument.OutcomeCreated, f.observer.events[0].Outcome)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, models.JobKindRefresh, f.queue.jobs[0].jobKind)
}

func TestPerformCreateServices_VanishedSubjectIsSilent(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{})
	f.resolver.subjects = nil

	job := models.CreateServicesJob{SubjectType: "user", SubjectID: "gone"}
	err := f.perform.PerformCreateServices(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, f.observer.events, 1)
	assert.Equal(t, instrument.OutcomeVanished, f.observer.events[0].Outcome)
}

func TestPerform_DispatchesByJobKind(t *testing.T) {
	f := newPerformerFixture(t, &fakeSource{payload: json.RawMessage(`{}`)})

	args, err := json.Marshal(refreshJob())
	require.NoError(t, err)

	env := &queue.Envelope{ID: "job-1", JobKind: models.JobKindRefresh, Args: args, EnqueuedAt: time.Now()}
	require.NoError(t, f.perform.Perform(context.Background(), env))
	assert.Equal(t, 1, f.source.fetches)

	env = &queue.Envelope{ID: "job-2", JobKind: "mystery", Args: json.RawMessage(`{}`)}
	assert.Error(t, f.perform.Perform(context.Background(), env))
}

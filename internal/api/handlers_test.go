package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/orchestrator"
	"github.com/profile-enricher/internal/registry"
)

// memSubjects is an in-memory SubjectStore.
type memSubjects struct {
	subjects map[string]*models.Subject
}

func subjectKey(subjectType, subjectID string) string { return subjectType + "/" + subjectID }

func newMemSubjects() *memSubjects {
	return &memSubjects{subjects: make(map[string]*models.Subject)}
}

func (s *memSubjects) Create(ctx context.Context, sub *models.Subject) error {
	s.subjects[subjectKey(sub.Type, sub.ID)] = sub
	return nil
}

func (s *memSubjects) Find(ctx context.Context, subjectType, subjectID string) (*models.Subject, error) {
	sub, ok := s.subjects[subjectKey(subjectType, subjectID)]
	if !ok {
		return nil, apperrors.NewNotFoundError("subject", subjectID)
	}
	return sub, nil
}

func (s *memSubjects) Update(ctx context.Context, sub *models.Subject) error {
	key := subjectKey(sub.Type, sub.ID)
	if _, ok := s.subjects[key]; !ok {
		return apperrors.NewNotFoundError("subject", sub.ID)
	}
	s.subjects[key] = sub
	return nil
}

func (s *memSubjects) Delete(ctx context.Context, subjectType, subjectID string) error {
	delete(s.subjects, subjectKey(subjectType, subjectID))
	return nil
}

// memRecords is an in-memory record store satisfying both the API's
// RecordStore and the orchestrator's.
type memRecords struct {
	records map[string]*models.ServiceRecord
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]*models.ServiceRecord)}
}

func (s *memRecords) Create(ctx context.Context, rec *models.ServiceRecord) error {
	s.records[rec.ID] = rec
	return nil
}

func (s *memRecords) FindBySubject(ctx context.Context, kind models.ServiceKind, subjectType, subjectID string) (*models.ServiceRecord, error) {
	for _, rec := range s.records {
		if rec.Kind == kind && rec.SubjectType == subjectType && rec.SubjectID == subjectID {
			return rec, nil
		}
	}
	return nil, apperrors.NewNotFoundError("service record", subjectID)
}

func (s *memRecords) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*models.ServiceRecord, error) {
	var out []*models.ServiceRecord
	for _, rec := range s.records {
		if rec.SubjectType == subjectType && rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memRecords) UpdateIdentifier(ctx context.Context, id, identifier string) error {
	rec, ok := s.records[id]
	if !ok {
		return apperrors.NewNotFoundError("service record", id)
	}
	rec.Identifier = identifier
	return nil
}

func (s *memRecords) DeleteBySubject(ctx context.Context, kind models.ServiceKind, subjectType, subjectID string) error {
	for id, rec := range s.records {
		if rec.Kind == kind && rec.SubjectType == subjectType && rec.SubjectID == subjectID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *memRecords) DeleteAllBySubject(ctx context.Context, subjectType, subjectID string) error {
	for id, rec := range s.records {
		if rec.SubjectType == subjectType && rec.SubjectID == subjectID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *memRecords) SetStartedWorking(ctx context.Context, id string, t time.Time) (bool, error) {
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	rec.StartedWorkingAt = &t
	return true, nil
}

func (s *memRecords) SetFinishedWorking(ctx context.Context, id string, t time.Time) (bool, error) {
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	rec.FinishedWorkingAt = &t
	return true, nil
}

func (s *memRecords) SetRefreshed(ctx context.Context, id string, t time.Time, payload []byte) (bool, error) {
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	rec.LastRefreshedAt = &t
	rec.Payload = payload
	return true, nil
}

func (s *memRecords) SetDisabledAt(ctx context.Context, id string, t *time.Time) error {
	if rec, ok := s.records[id]; ok {
		rec.DisabledAt = t
	}
	return nil
}

type memQueue struct {
	jobs []string // jobKind per submission, in order
}

func (q *memQueue) Enqueue(ctx context.Context, queueName, jobKind string, args interface{}) error {
	q.jobs = append(q.jobs, jobKind)
	return nil
}

func (q *memQueue) EnqueueIn(ctx context.Context, delay time.Duration, queueName, jobKind string, args interface{}) error {
	q.jobs = append(q.jobs, jobKind)
	return nil
}

type memStats struct{}

func (memStats) Len(ctx context.Context, queueName string) (int64, error)        { return 3, nil }
func (memStats) DelayedLen(ctx context.Context, queueName string) (int64, error) { return 1, nil }

type stubSource struct {
	probeErr error
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Fetch(ctx context.Context, identifier string) (json.RawMessage, error) {
	return json.RawMessage(`{"login":"` + identifier + `"}`), nil
}
func (s *stubSource) Probe(ctx context.Context, identifier string) error { return s.probeErr }

type fixture struct {
	subjects *memSubjects
	records  *memRecords
	queue    *memQueue
	source   *stubSource
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		subjects: newMemSubjects(),
		records:  newMemRecords(),
		queue:    &memQueue{},
		source:   &stubSource{},
	}

	table, err := registry.NewTable(&registry.Descriptor{
		Kind:            models.KindGitHub,
		RefreshInterval: 24 * time.Hour,
		Source:          f.source,
		Identifier:      func(s *models.Subject) string { return s.Identifier(models.KindGitHub) },
	})
	require.NoError(t, err)

	logger := logging.New(logging.LevelError, logging.FormatText)
	orch := orchestrator.New(f.records, f.subjects, f.queue, table, logger)

	f.server = NewServer(
		&ServerConfig{Host: "127.0.0.1", Port: "0"},
		f.subjects, f.records, orch, memStats{}, nil, nil, logger,
	)
	return f
}

func (f *fixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rr, req)
	return rr
}

func (f *fixture) seedSubject(identifier string) *models.Subject {
	sub := &models.Subject{
		ID:          "u-1",
		Type:        "user",
		Name:        "Octo Cat",
		Identifiers: map[models.ServiceKind]string{models.KindGitHub: identifier},
	}
	f.subjects.subjects[subjectKey(sub.Type, sub.ID)] = sub
	return sub
}

func (f *fixture) seedRecord(identifier string) *models.ServiceRecord {
	rec := &models.ServiceRecord{
		ID:          "rec-1",
		Kind:        models.KindGitHub,
		SubjectType: "user",
		SubjectID:   "u-1",
		Identifier:  identifier,
	}
	f.records.records[rec.ID] = rec
	return rec
}

func TestCreateSubject(t *testing.T) {
	f := newFixture(t)

	rr := f.request(t, "POST", "/api/subjects", map[string]interface{}{
		"type":        "user",
		"name":        "Octo Cat",
		"identifiers": map[string]string{"github": "octocat"},
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var sub models.Subject
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sub))
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "octocat", sub.Identifier(models.KindGitHub))

	// The create trigger schedules service materialization.
	assert.Equal(t, []string{models.JobKindCreateServices}, f.queue.jobs)
}

func TestCreateSubject_RejectsUnknownServiceKind(t *testing.T) {
	f := newFixture(t)

	rr := f.request(t, "POST", "/api/subjects", map[string]interface{}{
		"type":        "user",
		"identifiers": map[string]string{"myspace": "tom"},
	})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, f.queue.jobs)
}

func TestCreateSubject_RejectsMissingIdentifierUpstream(t *testing.T) {
	f := newFixture(t)
	f.source.probeErr = apperrors.NewNotFoundError("github user", "ghost")

	rr := f.request(t, "POST", "/api/subjects", map[string]interface{}{
		"type":        "user",
		"identifiers": map[string]string{"github": "ghost"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCreateSubject_FailsOpenWhenProbeDegraded(t *testing.T) {
	f := newFixture(t)
	f.source.probeErr = apperrors.NewRateLimitError("github", 60)

	rr := f.request(t, "POST", "/api/subjects", map[string]interface{}{
		"type":        "user",
		"identifiers": map[string]string{"github": "octocat"},
	})

	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestGetSubject(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")

	rr := f.request(t, "GET", "/api/subjects/user/u-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.request(t, "GET", "/api/subjects/user/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateSubject_ChangedIdentifierRepointsRecord(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	rec := f.seedRecord("octocat")

	rr := f.request(t, "PATCH", "/api/subjects/user/u-1", map[string]interface{}{
		"identifiers": map[string]string{"github": "hubot"},
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "hubot", rec.Identifier)
	assert.Equal(t, []string{models.JobKindRefresh}, f.queue.jobs)
}

func TestUpdateSubject_UnchangedIdentifierIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	f.seedRecord("octocat")
	f.source.probeErr = apperrors.NewNotFoundError("github user", "octocat")

	// The probe would fail, but an unchanged identifier is never
	// re-validated.
	rr := f.request(t, "PATCH", "/api/subjects/user/u-1", map[string]interface{}{
		"identifiers": map[string]string{"github": "octocat"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, f.queue.jobs)
}

func TestUpdateSubject_NewIdentifierCreatesRecord(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubject("")

	rr := f.request(t, "PATCH", "/api/subjects/user/u-1", map[string]interface{}{
		"identifiers": map[string]string{"github": "octocat"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "octocat", sub.Identifier(models.KindGitHub))

	rec, err := f.records.FindBySubject(context.Background(), models.KindGitHub, "user", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "octocat", rec.Identifier)
	assert.Equal(t, []string{models.JobKindRefresh}, f.queue.jobs)
}

func TestUpdateSubject_ClearedIdentifierDestroysRecord(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubject("octocat")
	f.seedRecord("octocat")

	rr := f.request(t, "PATCH", "/api/subjects/user/u-1", map[string]interface{}{
		"identifiers": map[string]string{"github": ""},
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "", sub.Identifier(models.KindGitHub))

	// The record goes with the identifier; nothing is left to refresh.
	_, err := f.records.FindBySubject(context.Background(), models.KindGitHub, "user", "u-1")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, f.queue.jobs)
}

func TestDeleteSubject_CascadesRecords(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	f.seedRecord("octocat")

	rr := f.request(t, "DELETE", "/api/subjects/user/u-1", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	assert.Empty(t, f.subjects.subjects)
	assert.Empty(t, f.records.records)

	rr = f.request(t, "DELETE", "/api/subjects/user/u-1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRefreshSubject_EnqueuesActiveRecords(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	rec := f.seedRecord("octocat")

	rr := f.request(t, "POST", "/api/subjects/user/u-1/refresh", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"enqueued":1}`, rr.Body.String())

	// Disabled records are skipped on the next run.
	now := time.Now()
	rec.DisabledAt = &now
	f.queue.jobs = nil

	rr = f.request(t, "POST", "/api/subjects/user/u-1/refresh", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"enqueued":0}`, rr.Body.String())
	assert.Empty(t, f.queue.jobs)
}

func TestForceRefresh_RunsSynchronously(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	rec := f.seedRecord("octocat")
	recent := time.Now().Add(-time.Minute)
	rec.LastRefreshedAt = &recent

	rr := f.request(t, "POST", "/api/subjects/user/u-1/services/github/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Forced: freshness did not matter, the fetch ran and the payload
	// was replaced.
	assert.JSONEq(t, `{"login":"octocat"}`, string(rec.Payload))
	assert.True(t, rec.LastRefreshedAt.After(recent))
}

func TestForceRefresh_DisabledRecordConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	rec := f.seedRecord("octocat")
	now := time.Now()
	rec.DisabledAt = &now

	rr := f.request(t, "POST", "/api/subjects/user/u-1/services/github/refresh", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestEnableDisableService(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	rec := f.seedRecord("octocat")

	rr := f.request(t, "POST", "/api/subjects/user/u-1/services/github/disable", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, rec.DisabledAt)

	rr = f.request(t, "POST", "/api/subjects/user/u-1/services/github/enable", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, rec.DisabledAt)
}

func TestListAndGetServices(t *testing.T) {
	f := newFixture(t)
	f.seedSubject("octocat")
	f.seedRecord("octocat")

	rr := f.request(t, "GET", "/api/subjects/user/u-1/services", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var records []*models.ServiceRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Len(t, records, 1)

	rr = f.request(t, "GET", "/api/subjects/user/u-1/services/github", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.request(t, "GET", "/api/subjects/user/u-1/services/myspace", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueueStats(t *testing.T) {
	f := newFixture(t)

	rr := f.request(t, "GET", "/api/stats/queues", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var depths map[string]queueDepth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &depths))
	assert.Equal(t, queueDepth{Ready: 3, Delayed: 1}, depths[models.QueueServices])
	assert.Equal(t, queueDepth{Ready: 3, Delayed: 1}, depths[models.QueueRefresh])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rr := f.request(t, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")
}
